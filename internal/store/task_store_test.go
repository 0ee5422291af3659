package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/mail2tasks/internal/model"
	"github.com/nhle/mail2tasks/internal/store"
	"github.com/nhle/mail2tasks/internal/testutil"
)

func TestAddTask_ListRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	id, err := s.AddTask(ctx, model.NewTask{
		Description: "Send deadline report",
		Priority:    model.PriorityHigh,
		Deadline:    testutil.StrPtr("2025-03-01"),
		Note:        "client request",
	})
	require.NoError(t, err)
	require.Positive(t, id)

	tasks, err := s.ListTasks(ctx, false)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	got := tasks[0]
	require.Equal(t, id, got.ID)
	require.Equal(t, "Send deadline report", got.Description)
	require.Equal(t, model.PriorityHigh, got.Priority)
	require.NotNil(t, got.Deadline)
	require.Equal(t, "2025-03-01", *got.Deadline)
	require.Equal(t, "client request", got.Note)
	require.False(t, got.Done)
	require.False(t, got.CreatedAt.IsZero())
}

func TestAddTask_DefaultsAndNullDeadline(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	id, err := s.AddTask(ctx, model.NewTask{Description: "Call back"})
	require.NoError(t, err)

	task, err := s.GetTask(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.PriorityMedium, task.Priority)
	require.Nil(t, task.Deadline)
	require.Empty(t, task.Note)
}

func TestAddTask_IDsIncrease(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	first, err := s.AddTask(ctx, model.NewTask{Description: "one"})
	require.NoError(t, err)
	second, err := s.AddTask(ctx, model.NewTask{Description: "two"})
	require.NoError(t, err)
	require.Greater(t, second, first)
}

func TestListTasks_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	for _, d := range []string{"first", "second", "third"} {
		_, err := s.AddTask(ctx, model.NewTask{Description: d})
		require.NoError(t, err)
	}

	tasks, err := s.ListTasks(ctx, false)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	require.Equal(t, "third", tasks[0].Description)
	require.Equal(t, "first", tasks[2].Description)
}

func TestMarkDone_HidesFromOpenList(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	id, err := s.AddTask(ctx, model.NewTask{Description: "Review contract"})
	require.NoError(t, err)
	require.NoError(t, s.MarkDone(ctx, id))

	open, err := s.ListTasks(ctx, false)
	require.NoError(t, err)
	require.Empty(t, open)

	all, err := s.ListTasks(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.True(t, all[0].Done)
}

func TestMarkDoneAndDelete_UnknownIDIsNoop(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	require.NoError(t, s.MarkDone(ctx, 999))
	require.NoError(t, s.DeleteTask(ctx, 999))
}

func TestDeleteTask(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	id, err := s.AddTask(ctx, model.NewTask{Description: "Obsolete"})
	require.NoError(t, err)
	require.NoError(t, s.DeleteTask(ctx, id))

	_, err = s.GetTask(ctx, id)
	require.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestTaskExists_SubstringOfOpenTask(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	id, err := s.AddTask(ctx, model.NewTask{
		Description: "Fix the report urgently",
		Priority:    model.PriorityHigh,
	})
	require.NoError(t, err)

	exists, err := s.TaskExists(ctx, "the report", nil)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = s.TaskExists(ctx, "Fix the report urgently", nil)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = s.TaskExists(ctx, "Fix the invoice", nil)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, s.MarkDone(ctx, id))

	exists, err = s.TaskExists(ctx, "the report", nil)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestTaskExists_DeadlineMustMatch(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	_, err := s.AddTask(ctx, model.NewTask{
		Description: "Send deadline report",
		Deadline:    testutil.StrPtr("2025-03-01"),
	})
	require.NoError(t, err)

	exists, err := s.TaskExists(ctx, "deadline report", testutil.StrPtr("2025-03-01"))
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = s.TaskExists(ctx, "deadline report", testutil.StrPtr("2025-04-01"))
	require.NoError(t, err)
	require.False(t, exists)
}

func TestTaskExists_WildcardsAreLiteral(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	_, err := s.AddTask(ctx, model.NewTask{Description: "Reach 100 sign-ups"})
	require.NoError(t, err)

	exists, err := s.TaskExists(ctx, "100%", nil)
	require.NoError(t, err)
	require.False(t, exists)

	exists, err = s.TaskExists(ctx, "sign_ups", nil)
	require.NoError(t, err)
	require.False(t, exists)
}
