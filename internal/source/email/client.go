package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"github.com/nhle/mail2tasks/internal/model"
)

const inbox = "INBOX"

// defaultDialTimeout is used when the configuration leaves the mail
// timeout unset.
const defaultDialTimeout = 30 * time.Second

// session is the subset of an authenticated IMAP connection used by
// IMAPClient.
type session interface {
	SelectInbox() (uint32, error)
	SearchAll() ([]imap.UID, error)
	FetchRaw(uid imap.UID, peek bool) ([]byte, error)
	Close() error
}

// dialFunc opens an authenticated session.
type dialFunc func(ctx context.Context, cfg model.MailConfig) (session, error)

// IMAPClient fetches keyword-matched messages from an IMAP inbox. Each
// call opens its own session and logs out before returning.
type IMAPClient struct {
	cfg      model.MailConfig
	keywords []string
	log      *zap.Logger
	dial     dialFunc
}

// NewIMAPClient creates a mailbox client for cfg. Messages must contain
// at least one of keywords to be returned by FetchCandidates.
func NewIMAPClient(cfg model.MailConfig, keywords []string, log *zap.Logger) *IMAPClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &IMAPClient{
		cfg:      cfg,
		keywords: keywords,
		log:      log.Named("mailbox"),
		dial:     dialTLS,
	}
}

// Keywords returns the configured keyword list.
func (c *IMAPClient) Keywords() []string {
	return c.keywords
}

// FetchCandidates returns the keyword-matched messages among the most
// recent MaxMessages in the inbox. Connection-level failures are returned
// as a *ConnectionError. A message that cannot be fetched is logged and
// skipped.
func (c *IMAPClient) FetchCandidates(ctx context.Context) ([]Message, error) {
	sess, _, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer c.closeSession(sess)

	uids, err := sess.SearchAll()
	if err != nil {
		return nil, c.connErr("search", err)
	}

	limit := c.cfg.MaxMessages
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	c.log.Info("scanning inbox",
		zap.Int("messages", len(uids)),
		zap.Int("keywords", len(c.keywords)),
	)

	var candidates []Message
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return candidates, err
		}

		msg, err := c.fetchMessage(sess, uid)
		if err != nil {
			c.log.Warn("skipping message", zap.Error(err))
			continue
		}

		msg.MatchedKeywords = MatchKeywords(msg.Subject, msg.Body, c.keywords)
		if len(msg.MatchedKeywords) == 0 {
			c.log.Debug("no keyword match", zap.String("subject", msg.Subject))
			continue
		}

		c.log.Debug("keyword match",
			zap.String("subject", msg.Subject),
			zap.Strings("keywords", msg.MatchedKeywords),
		)
		candidates = append(candidates, msg)
	}

	c.log.Info("inbox scanned", zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// Check connects, selects the inbox and reports the message count and
// the subject of the newest message. Messages are never marked seen.
func (c *IMAPClient) Check(ctx context.Context) (MailboxInfo, error) {
	info := MailboxInfo{Address: c.cfg.Address}

	sess, count, err := c.open(ctx)
	if err != nil {
		return info, err
	}
	defer c.closeSession(sess)
	info.Messages = count

	uids, err := sess.SearchAll()
	if err != nil {
		return info, c.connErr("search", err)
	}
	if len(uids) == 0 {
		return info, nil
	}

	last := uids[len(uids)-1]
	raw, err := sess.FetchRaw(last, true)
	if err != nil {
		return info, &FetchError{UID: uint32(last), Err: err}
	}
	parsed, err := parseMessage(raw)
	if err != nil {
		return info, &FetchError{UID: uint32(last), Err: err}
	}
	info.LatestSubject = parsed.Subject

	return info, nil
}

// open dials, logs in and selects the inbox, returning its message
// count.
func (c *IMAPClient) open(ctx context.Context) (session, uint32, error) {
	sess, err := c.dial(ctx, c.cfg)
	if err != nil {
		var connErr *ConnectionError
		if errors.As(err, &connErr) {
			return nil, 0, err
		}
		return nil, 0, c.connErr("connect", err)
	}

	count, err := sess.SelectInbox()
	if err != nil {
		c.closeSession(sess)
		return nil, 0, c.connErr("select", err)
	}
	return sess, count, nil
}

func (c *IMAPClient) closeSession(sess session) {
	if err := sess.Close(); err != nil {
		c.log.Debug("closing imap session", zap.Error(err))
	}
}

func (c *IMAPClient) fetchMessage(sess session, uid imap.UID) (Message, error) {
	raw, err := sess.FetchRaw(uid, !c.cfg.MarkSeen)
	if err != nil {
		return Message{}, &FetchError{UID: uint32(uid), Err: err}
	}

	parsed, err := parseMessage(raw)
	if err != nil {
		return Message{}, &FetchError{UID: uint32(uid), Err: err}
	}

	return Message{
		Subject: parsed.Subject,
		Body:    parsed.Body,
		From:    parsed.From,
		Date:    parsed.Date,
	}, nil
}

func (c *IMAPClient) connErr(op string, err error) error {
	return &ConnectionError{Addr: c.cfg.MailAddr(), Op: op, Err: err}
}

// imapSession adapts an authenticated go-imap client to session.
type imapSession struct {
	client *imapclient.Client
}

// dialTLS opens an implicit-TLS connection and logs in.
func dialTLS(ctx context.Context, cfg model.MailConfig) (session, error) {
	addr := cfg.MailAddr()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config:    &tls.Config{ServerName: cfg.Server},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Op: "connect", Err: err}
	}

	client := imapclient.New(conn, nil)
	if err := client.Login(cfg.Address, cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, &ConnectionError{
			Addr: addr,
			Op:   "login",
			Err:  fmt.Errorf("authentication failed for %s: %w", cfg.Address, err),
		}
	}

	return &imapSession{client: client}, nil
}

func (s *imapSession) SelectInbox() (uint32, error) {
	data, err := s.client.Select(inbox, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("selecting %s: %w", inbox, err)
	}
	return data.NumMessages, nil
}

func (s *imapSession) SearchAll() ([]imap.UID, error) {
	data, err := s.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", inbox, err)
	}
	return data.AllUIDs(), nil
}

// FetchRaw returns the full RFC 822 message. With peek set the \Seen
// flag is left untouched.
func (s *imapSession) FetchRaw(uid imap.UID, peek bool) ([]byte, error) {
	bodySection := &imap.FetchItemBodySection{Peek: peek}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.client.Fetch(imap.UIDSetNum(uid), fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message data: %w", err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message UID %d has no body", uid)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("closing fetch: %w", err)
	}
	return raw, nil
}

func (s *imapSession) Close() error {
	logoutErr := s.client.Logout().Wait()
	if err := s.client.Close(); err != nil && logoutErr == nil {
		return err
	}
	return logoutErr
}
