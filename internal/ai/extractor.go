package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mail2tasks/internal/model"
)

const (
	defaultURL     = "https://api.mistral.ai/v1/chat/completions"
	defaultModel   = "mistral-small-latest"
	defaultTimeout = 60 * time.Second
	temperature    = 0.1

	// maxPromptContent is the number of content characters embedded in
	// the prompt.
	maxPromptContent = 2000

	// maxFallbackDescription bounds the fallback task description.
	maxFallbackDescription = 100

	FallbackDescription = "Task extracted from email"
	FallbackNote        = "Automatic extraction (fallback mode)"
)

var errMissingAPIKey = errors.New("API key is not configured")

// Extractor turns email content into task candidates using a hosted
// chat-completion API.
type Extractor struct {
	apiKey string
	url    string
	model  string
	client *http.Client
	log    *zap.Logger
}

// NewExtractor creates an extractor from cfg. Unset fields fall back to
// the Mistral defaults.
func NewExtractor(cfg model.LLMConfig, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}

	url := cfg.URL
	if url == "" {
		url = defaultURL
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Extractor{
		apiKey: cfg.APIKey,
		url:    url,
		model:  modelName,
		client: &http.Client{Timeout: timeout},
		log:    log.Named("extractor"),
	}
}

// Extract returns a candidate for content. It never fails: any extraction
// error is logged and replaced by the fallback candidate.
func (e *Extractor) Extract(ctx context.Context, content string) Candidate {
	c, err := e.TryExtract(ctx, content)
	if err != nil {
		e.log.Warn("using fallback task", zap.Error(err))
		return Fallback(content)
	}
	return c
}

// TryExtract asks the model for a candidate. Failures are returned as an
// *ExtractionError.
func (e *Extractor) TryExtract(ctx context.Context, content string) (Candidate, error) {
	if e.apiKey == "" {
		return Candidate{}, &ExtractionError{Reason: "missing api key", Err: errMissingAPIKey}
	}

	reply, err := e.complete(ctx, buildPrompt(content))
	if err != nil {
		return Candidate{}, err
	}

	obj, ok := extractJSON(reply)
	if !ok {
		return Candidate{}, &ExtractionError{Reason: "no JSON object in reply"}
	}

	var raw rawCandidate
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return Candidate{}, &ExtractionError{Reason: "invalid JSON in reply", Err: err}
	}

	c, err := normalize(raw)
	if err != nil {
		return Candidate{}, err
	}

	e.log.Info("task extracted",
		zap.String("description", c.Description),
		zap.String("priority", string(c.Priority)),
	)
	return c, nil
}

// complete sends prompt as a single user message and returns the first
// choice's content.
func (e *Extractor) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:       e.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ExtractionError{Reason: "encoding request", Err: err}
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, e.url, bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return "", &ExtractionError{Reason: "creating request", Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", &ExtractionError{Reason: "calling chat API", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ExtractionError{Reason: "reading response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &ExtractionError{
			Reason: fmt.Sprintf("API status %d", resp.StatusCode),
			Err:    errors.New(apiErrorMessage(respBody)),
		}
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &ExtractionError{Reason: "decoding response", Err: err}
	}
	if len(result.Choices) == 0 {
		return "", &ExtractionError{Reason: "response has no choices"}
	}

	return result.Choices[0].Message.Content, nil
}

func apiErrorMessage(body []byte) string {
	var apiErr chatErrorResponse
	if json.Unmarshal(body, &apiErr) == nil {
		if apiErr.Error.Message != "" {
			return apiErr.Error.Message
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}
	return truncate(strings.TrimSpace(string(body)), 200)
}

// buildPrompt embeds at most maxPromptContent characters of content in
// the extraction instructions.
func buildPrompt(content string) string {
	var sb strings.Builder

	sb.WriteString("Analyze this email and extract the task it asks for.\n")
	sb.WriteString("Return ONLY a valid JSON object, with no other text.\n\n")

	sb.WriteString("Required JSON format:\n")
	sb.WriteString("{\n")
	sb.WriteString(`  "description": "short, precise description of the task",` + "\n")
	sb.WriteString(`  "priority": "low, medium or high",` + "\n")
	sb.WriteString(`  "deadline": "date as YYYY-MM-DD if present, otherwise null",` + "\n")
	sb.WriteString(`  "note": "important additional information"` + "\n")
	sb.WriteString("}\n\n")

	sb.WriteString("Rules:\n")
	sb.WriteString("- The description is concise (10 words at most)\n")
	sb.WriteString(`- Priority: "high" for urgent or short deadlines, `)
	sb.WriteString(`"medium" for normal, "low" for not urgent` + "\n")
	sb.WriteString("- Deadline: only when a date is explicitly mentioned\n")
	sb.WriteString("- Note: useful extra context\n\n")

	sb.WriteString("Email content:\n")
	sb.WriteString(truncateRunes(content, maxPromptContent))
	sb.WriteString("\n\nJSON response:\n")

	return sb.String()
}

// extractJSON returns the substring from the first '{' to the last '}'.
func extractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// normalize maps the decoded reply onto a Candidate. Priorities are
// normalized, deadlines that are not YYYY-MM-DD dates are dropped, and
// an empty description is an error.
func normalize(raw rawCandidate) (Candidate, error) {
	desc := strings.TrimSpace(firstNonNil(raw.Description, raw.Tache))
	if desc == "" {
		return Candidate{}, &ExtractionError{Reason: "reply has no description"}
	}

	c := Candidate{
		Description: desc,
		Priority:    model.ParsePriority(firstNonNil(raw.Priority, raw.Priorite)),
		Note:        strings.TrimSpace(firstNonNil(raw.Note, raw.Info)),
	}
	if raw.Deadline != nil {
		c.Deadline = model.NormalizeDeadline(*raw.Deadline)
	}
	return c, nil
}

// Fallback builds the deterministic candidate used when the model cannot
// be consulted: the first line of content as is (at most 100 characters),
// medium priority, and no deadline. A blank first line yields
// FallbackDescription.
func Fallback(content string) Candidate {
	firstLine, _, _ := strings.Cut(content, "\n")
	desc := truncateRunes(firstLine, maxFallbackDescription)
	if strings.TrimSpace(desc) == "" {
		desc = FallbackDescription
	}

	return Candidate{
		Description: desc,
		Priority:    model.PriorityMedium,
		Note:        FallbackNote,
		Fallback:    true,
	}
}

func firstNonNil(values ...*string) string {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return truncateRunes(s, n) + "..."
}
