package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/mail2tasks/internal/ai"
	"github.com/nhle/mail2tasks/internal/model"
	"github.com/nhle/mail2tasks/internal/source/email"
	"github.com/nhle/mail2tasks/internal/testutil"
)

type mockMailbox struct {
	mock.Mock
}

func (m *mockMailbox) FetchCandidates(ctx context.Context) ([]email.Message, error) {
	args := m.Called(ctx)
	msgs, _ := args.Get(0).([]email.Message)
	return msgs, args.Error(1)
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, content string) ai.Candidate {
	args := m.Called(ctx, content)
	return args.Get(0).(ai.Candidate)
}

var deadlineReport = email.Message{
	Subject:         "Client follow-up",
	Body:            "URGENT: send deadline report by 2025-03-01",
	MatchedKeywords: []string{"urgent", "deadline", "report"},
}

func deadlineCandidate() ai.Candidate {
	return ai.Candidate{
		Description: "Send deadline report",
		Priority:    model.PriorityHigh,
		Deadline:    testutil.StrPtr("2025-03-01"),
		Note:        "client request",
	}
}

func TestRun_ExtractsAndStoresTask(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	mb := &mockMailbox{}
	mb.On("FetchCandidates", mock.Anything).Return([]email.Message{deadlineReport}, nil)

	ex := &mockExtractor{}
	ex.On("Extract", mock.Anything, EmailContent(deadlineReport)).Return(deadlineCandidate())

	report, err := NewOrchestrator(mb, ex, s, zap.NewNop()).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.TasksAdded)
	assert.Equal(t, 1, report.EmailsProcessed)
	assert.Zero(t, report.EmailsSkipped)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	tasks, err := s.ListTasks(ctx, false)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Send deadline report", tasks[0].Description)
	assert.Equal(t, model.PriorityHigh, tasks[0].Priority)
	assert.Equal(t, "2025-03-01", tasks[0].DeadlineString())
	assert.Equal(t, "client request", tasks[0].Note)

	count, err := s.CountProcessedEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	ex.AssertExpectations(t)
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	mb := &mockMailbox{}
	mb.On("FetchCandidates", mock.Anything).Return([]email.Message{deadlineReport}, nil)

	ex := &mockExtractor{}
	ex.On("Extract", mock.Anything, mock.Anything).Return(deadlineCandidate()).Once()

	o := NewOrchestrator(mb, ex, s, zap.NewNop())

	_, err := o.Run(ctx)
	require.NoError(t, err)

	report, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.TasksAdded)
	assert.Zero(t, report.EmailsProcessed)
	assert.Equal(t, 1, report.EmailsSkipped)

	ex.AssertNumberOfCalls(t, "Extract", 1)

	count, err := s.CountProcessedEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRun_DuplicateEmailsInSameBatch(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	mb := &mockMailbox{}
	mb.On("FetchCandidates", mock.Anything).
		Return([]email.Message{deadlineReport, deadlineReport}, nil)

	ex := &mockExtractor{}
	ex.On("Extract", mock.Anything, mock.Anything).Return(deadlineCandidate())

	report, err := NewOrchestrator(mb, ex, s, zap.NewNop()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TasksAdded)
	assert.Equal(t, 1, report.EmailsProcessed)
	assert.Equal(t, 1, report.EmailsSkipped)
	ex.AssertNumberOfCalls(t, "Extract", 1)
}

func TestRun_ExistingTaskStillMarksEmailProcessed(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	_, err := s.AddTask(ctx, model.NewTask{
		Description: "Send deadline report to the client",
		Deadline:    testutil.StrPtr("2025-03-01"),
	})
	require.NoError(t, err)

	mb := &mockMailbox{}
	mb.On("FetchCandidates", mock.Anything).Return([]email.Message{deadlineReport}, nil)

	ex := &mockExtractor{}
	ex.On("Extract", mock.Anything, mock.Anything).Return(deadlineCandidate())

	report, err := NewOrchestrator(mb, ex, s, zap.NewNop()).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.TasksAdded)
	assert.Equal(t, 1, report.EmailsProcessed)

	processed, err := s.IsEmailProcessed(ctx, deadlineReport.Subject, deadlineReport.Body)
	require.NoError(t, err)
	assert.True(t, processed)

	tasks, err := s.ListTasks(ctx, true)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestRun_FallbackCandidateIsStored(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	msg := email.Message{Subject: "Review contract", Body: "before friday"}

	mb := &mockMailbox{}
	mb.On("FetchCandidates", mock.Anything).Return([]email.Message{msg}, nil)

	ex := &mockExtractor{}
	ex.On("Extract", mock.Anything, mock.Anything).Return(ai.Fallback(EmailContent(msg)))

	report, err := NewOrchestrator(mb, ex, s, zap.NewNop()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TasksAdded)

	tasks, err := s.ListTasks(ctx, false)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Subject: Review contract", tasks[0].Description)
	assert.Equal(t, model.PriorityMedium, tasks[0].Priority)
	assert.Nil(t, tasks[0].Deadline)
	assert.Equal(t, ai.FallbackNote, tasks[0].Note)
}

func TestRun_ConnectionErrorAborts(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	connErr := &email.ConnectionError{
		Addr: "imap.example.com:993",
		Op:   "login",
		Err:  errors.New("invalid credentials"),
	}

	mb := &mockMailbox{}
	mb.On("FetchCandidates", mock.Anything).Return(nil, connErr)

	ex := &mockExtractor{}

	report, err := NewOrchestrator(mb, ex, s, zap.NewNop()).Run(ctx)
	require.Error(t, err)
	assert.True(t, email.IsConnectionError(err))
	assert.Zero(t, report.TasksAdded)
	assert.Zero(t, report.EmailsProcessed)
	assert.Zero(t, report.EmailsSkipped)
	ex.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestRun_NoCandidates(t *testing.T) {
	s := testutil.NewTestStore(t)

	mb := &mockMailbox{}
	mb.On("FetchCandidates", mock.Anything).Return([]email.Message{}, nil)

	report, err := NewOrchestrator(mb, &mockExtractor{}, s, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{
		RunID:      report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}, report)
}

func TestEmailContent(t *testing.T) {
	got := EmailContent(email.Message{Subject: "Hello", Body: "world"})
	assert.Equal(t, "Subject: Hello\n\nBody: world", got)
}
