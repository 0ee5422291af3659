package model

import "time"

// ProcessedEmail is a ledger entry recording that an email with this
// subject and body fingerprint has already been through a sync run.
type ProcessedEmail struct {
	ID              int64     `json:"id" db:"id"`
	Subject         string    `json:"subject" db:"subject"`
	BodyFingerprint string    `json:"body_fingerprint" db:"body_hash"`
	ProcessedAt     time.Time `json:"processed_at" db:"processed_at"`
}
