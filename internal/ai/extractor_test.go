package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/mail2tasks/internal/model"
)

const scenarioContent = "Subject: URGENT report\n\nBody: URGENT: send deadline report by 2025-03-01"

// chatServer replies to every request with content as the first choice.
func chatServer(t *testing.T, status int, content string) (*httptest.Server, *chatRequest, *int32) {
	t.Helper()

	var got chatRequest
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"message":"rate limited"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse{
			ID:      "cmpl-1",
			Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: content}}},
		})
	}))
	t.Cleanup(srv.Close)

	return srv, &got, &calls
}

func newTestExtractor(url string) *Extractor {
	return NewExtractor(model.LLMConfig{
		APIKey: "test-key",
		URL:    url,
		Model:  "test-model",
	}, zap.NewNop())
}

func TestTryExtract_Success(t *testing.T) {
	reply := "Here is the task:\n```json\n" +
		`{"description":"Send deadline report","priority":"high","deadline":"2025-03-01","note":"client request"}` +
		"\n```"
	srv, got, _ := chatServer(t, http.StatusOK, reply)

	c, err := newTestExtractor(srv.URL).TryExtract(context.Background(), scenarioContent)
	require.NoError(t, err)

	assert.Equal(t, "Send deadline report", c.Description)
	assert.Equal(t, model.PriorityHigh, c.Priority)
	require.NotNil(t, c.Deadline)
	assert.Equal(t, "2025-03-01", *c.Deadline)
	assert.Equal(t, "client request", c.Note)
	assert.False(t, c.Fallback)

	assert.Equal(t, "test-model", got.Model)
	assert.InDelta(t, 0.1, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, scenarioContent)
}

func TestTryExtract_FrenchKeysAndAliases(t *testing.T) {
	reply := `{"tache":"Préparer la réunion","priorite":"haute","deadline":null,"info":"salle B"}`
	srv, _, _ := chatServer(t, http.StatusOK, reply)

	c, err := newTestExtractor(srv.URL).TryExtract(context.Background(), "Subject: réunion")
	require.NoError(t, err)
	assert.Equal(t, "Préparer la réunion", c.Description)
	assert.Equal(t, model.PriorityHigh, c.Priority)
	assert.Nil(t, c.Deadline)
	assert.Equal(t, "salle B", c.Note)
}

func TestTryExtract_NormalizesFields(t *testing.T) {
	reply := `{"description":"  Call supplier ","priority":"whenever","deadline":"next friday","note":""}`
	srv, _, _ := chatServer(t, http.StatusOK, reply)

	c, err := newTestExtractor(srv.URL).TryExtract(context.Background(), "Subject: call")
	require.NoError(t, err)
	assert.Equal(t, "Call supplier", c.Description)
	assert.Equal(t, model.PriorityMedium, c.Priority)
	assert.Nil(t, c.Deadline)
}

func TestTryExtract_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
	}{
		{"non-2xx status", http.StatusTooManyRequests, ""},
		{"no braces", http.StatusOK, "I could not find a task."},
		{"invalid JSON", http.StatusOK, "{description: nope}"},
		{"empty description", http.StatusOK, `{"description":"","priority":"low"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := chatServer(t, tt.status, tt.content)

			_, err := newTestExtractor(srv.URL).TryExtract(context.Background(), "Subject: x")
			require.Error(t, err)
			assert.True(t, IsExtractionError(err))
		})
	}
}

func TestTryExtract_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestExtractor(srv.URL).TryExtract(context.Background(), "Subject: x")
	require.Error(t, err)
	assert.True(t, IsExtractionError(err))
}

func TestTryExtract_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestExtractor(url).TryExtract(context.Background(), "Subject: x")
	require.Error(t, err)
	assert.True(t, IsExtractionError(err))
}

func TestExtract_MissingKeySkipsHTTP(t *testing.T) {
	srv, _, calls := chatServer(t, http.StatusOK, `{"description":"never"}`)

	e := NewExtractor(model.LLMConfig{URL: srv.URL}, zap.NewNop())

	_, err := e.TryExtract(context.Background(), "Subject: x")
	require.Error(t, err)
	assert.ErrorIs(t, err, errMissingAPIKey)

	c := e.Extract(context.Background(), "Subject: Fix the build\n\nBody: asap")
	assert.True(t, c.Fallback)
	assert.Equal(t, "Subject: Fix the build", c.Description)
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestExtract_FallsBackOnBadReply(t *testing.T) {
	srv, _, _ := chatServer(t, http.StatusOK, "no json here")

	c := newTestExtractor(srv.URL).Extract(context.Background(), "Subject: Review contract\n\nBody: soon")
	assert.Equal(t, Candidate{
		Description: "Subject: Review contract",
		Priority:    model.PriorityMedium,
		Note:        FallbackNote,
		Fallback:    true,
	}, c)
}

func TestBuildPrompt_TruncatesContent(t *testing.T) {
	content := strings.Repeat("a", maxPromptContent) + "OVERFLOW"
	prompt := buildPrompt(content)

	assert.Contains(t, prompt, strings.Repeat("a", maxPromptContent))
	assert.NotContains(t, prompt, "OVERFLOW")
	assert.Contains(t, prompt, `"description"`)
	assert.Contains(t, prompt, `"deadline"`)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a":1}`, `{"a":1}`, true},
		{`prefix {"a":{"b":2}} suffix`, `{"a":{"b":2}}`, true},
		{"no object", "", false},
		{"} reversed {", "", false},
	}
	for _, tt := range tests {
		got, ok := extractJSON(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFallback(t *testing.T) {
	c := Fallback("")
	assert.Equal(t, FallbackDescription, c.Description)

	c = Fallback("   \nbody")
	assert.Equal(t, FallbackDescription, c.Description)

	long := strings.Repeat("x", 150) + "\nsecond line"
	c = Fallback(long)
	assert.Equal(t, strings.Repeat("x", 100), c.Description)
}

func TestFallback_KeepsFirstLineVerbatim(t *testing.T) {
	c := Fallback("  Subject: Relance facture  \n\nMerci de payer")
	assert.Equal(t, "  Subject: Relance facture  ", c.Description)

	padded := "  " + strings.Repeat("é", 120)
	c = Fallback(padded)
	assert.Equal(t, "  "+strings.Repeat("é", 98), c.Description)
}

func TestFallback_Deterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("description is the untrimmed first line, capped at 100 characters", prop.ForAll(
		func(pad int, word, rest string) bool {
			first := strings.Repeat(" ", pad) + word
			c := Fallback(first + "\n" + rest)
			want := first
			if len(want) > maxFallbackDescription {
				want = want[:maxFallbackDescription]
			}
			return c.Description == want &&
				c.Priority == model.PriorityMedium &&
				c.Deadline == nil &&
				c == Fallback(first+"\n"+rest)
		},
		gen.IntRange(0, 3),
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
