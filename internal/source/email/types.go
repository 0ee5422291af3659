package email

import (
	"errors"
	"fmt"
	"time"
)

// Message is a keyword-matched inbox message, ready for extraction.
type Message struct {
	Subject string
	// Body is the first text/plain part with whitespace collapsed,
	// truncated to MaxBodyLength characters.
	Body string
	From string
	Date time.Time
	// MatchedKeywords lists the configured keywords found in the subject
	// or body, in configuration order.
	MatchedKeywords []string
}

// MailboxInfo summarizes a successful mailbox check.
type MailboxInfo struct {
	Address       string
	Messages      uint32
	LatestSubject string
}

// ConnectionError indicates the session could not be established or the
// inbox could not be selected or searched. No messages are returned
// alongside it.
type ConnectionError struct {
	Addr string
	Op   string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mailbox %s: %s: %v", e.Addr, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err (or any error in its chain) is a
// ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// FetchError indicates a single message could not be fetched or parsed.
// The batch carries on without it.
type FetchError struct {
	UID uint32
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching message UID %d: %v", e.UID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
