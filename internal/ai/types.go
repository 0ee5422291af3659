package ai

import (
	"errors"
	"fmt"

	"github.com/nhle/mail2tasks/internal/model"
)

// Candidate is a task proposed for an email, either by the model or by
// the fallback.
type Candidate struct {
	Description string
	Priority    model.Priority
	Deadline    *string
	Note        string

	// Fallback is set when the candidate was produced without the model.
	Fallback bool
}

// NewTask converts the candidate into the store's insertion form.
func (c Candidate) NewTask() model.NewTask {
	return model.NewTask{
		Description: c.Description,
		Priority:    c.Priority,
		Deadline:    c.Deadline,
		Note:        c.Note,
	}
}

// ExtractionError describes why the model could not produce a candidate.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return "extraction failed: " + e.Reason
	}
	return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsExtractionError reports whether err (or any error in its chain) is an
// ExtractionError.
func IsExtractionError(err error) bool {
	var extErr *ExtractionError
	return errors.As(err, &extErr)
}

// --- Chat completion wire types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatChoice struct {
	Index   int         `json:"index"`
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatErrorResponse struct {
	Message string `json:"message"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

// rawCandidate is the JSON object the model is asked to return. The
// French keys are accepted as aliases.
type rawCandidate struct {
	Description *string `json:"description"`
	Tache       *string `json:"tache"`
	Priority    *string `json:"priority"`
	Priorite    *string `json:"priorite"`
	Deadline    *string `json:"deadline"`
	Note        *string `json:"note"`
	Info        *string `json:"info"`
}
