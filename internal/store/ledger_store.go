package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mail2tasks/internal/model"
)

// Fingerprint returns the hex-encoded MD5 digest of an email body. It only
// needs to tell bodies apart; it is not used for anything security related.
func Fingerprint(body string) string {
	sum := md5.Sum([]byte(body))
	return hex.EncodeToString(sum[:])
}

// IsEmailProcessed reports whether an email with this subject and body
// fingerprint is already in the processed ledger.
func (s *SQLiteStore) IsEmailProcessed(ctx context.Context, subject, body string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM processed_emails
		WHERE subject = ? AND body_hash = ?`,
		subject, Fingerprint(body),
	)
	if err != nil {
		return false, fmt.Errorf("checking processed email: %w", err)
	}

	if count > 0 {
		s.log.Debug("email already processed", zap.String("subject", truncate(subject, 50)))
	}
	return count > 0, nil
}

// MarkEmailProcessed appends the email to the processed ledger. Repeated
// calls for the same email add repeated rows; only existence matters.
func (s *SQLiteStore) MarkEmailProcessed(ctx context.Context, subject, body string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_emails (subject, body_hash, processed_at)
		VALUES (?, ?, ?)`,
		subject, Fingerprint(body), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("marking email processed: %w", err)
	}

	s.log.Debug("email marked processed", zap.String("subject", truncate(subject, 50)))
	return nil
}

// ClearProcessedEmails empties the processed ledger so every email is
// evaluated again on the next sync.
func (s *SQLiteStore) ClearProcessedEmails(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM processed_emails"); err != nil {
		return fmt.Errorf("clearing processed emails: %w", err)
	}
	s.log.Info("processed email ledger cleared")
	return nil
}

// CountProcessedEmails returns the number of ledger rows.
func (s *SQLiteStore) CountProcessedEmails(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM processed_emails"); err != nil {
		return 0, fmt.Errorf("counting processed emails: %w", err)
	}
	return count, nil
}

// RecentProcessedEmails returns up to limit ledger entries, most recent
// first.
func (s *SQLiteStore) RecentProcessedEmails(ctx context.Context, limit int) ([]model.ProcessedEmail, error) {
	var entries []model.ProcessedEmail
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, subject, body_hash, processed_at
		FROM processed_emails
		ORDER BY processed_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing processed emails: %w", err)
	}
	return entries, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
