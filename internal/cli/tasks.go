package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/mail2tasks/internal/model"
	"github.com/nhle/mail2tasks/internal/theme"
	"github.com/nhle/mail2tasks/internal/ui/tasklist"
)

func newListCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			tasks, err := s.ListTasks(cmd.Context(), all)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, theme.NoteStyle.Render("No tasks."))
				return nil
			}
			for _, t := range tasks {
				fmt.Fprintln(out, tasklist.RenderTask(t, false))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include completed tasks")
	return cmd
}

func newAddCmd(a *app) *cobra.Command {
	var (
		description string
		priority    string
		deadline    string
		note        string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task by hand",
		Long: `Add a task by hand. Without --description an interactive form is shown.

Examples:
  mail2tasks add -d "Send the quarterly report" -p high --deadline 2025-03-31`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(description) == "" {
				if err := taskForm(&description, &priority, &deadline, &note).Run(); err != nil {
					return fmt.Errorf("reading task form: %w", err)
				}
			}

			task := model.NewTask{
				Description: description,
				Priority:    model.Priority(priority),
				Note:        note,
			}
			if deadline != "" {
				task.Deadline = &deadline
			}
			if err := task.Validate(); err != nil {
				return err
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			id, err := s.AddTask(cmd.Context(), task)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), theme.SuccessStyle.Render(fmt.Sprintf("Added task #%d", id)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "what needs to be done")
	cmd.Flags().StringVarP(&priority, "priority", "p", string(model.PriorityMedium), "low, medium or high")
	cmd.Flags().StringVar(&deadline, "deadline", "", "due date as YYYY-MM-DD")
	cmd.Flags().StringVarP(&note, "note", "n", "", "free-text note")
	return cmd
}

func taskForm(description, priority, deadline, note *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Description").
				Placeholder("What needs to be done?").
				Value(description).
				Validate(validateRequired("Description")),
			huh.NewSelect[string]().
				Title("Priority").
				Options(
					huh.NewOption("High", string(model.PriorityHigh)),
					huh.NewOption("Medium", string(model.PriorityMedium)),
					huh.NewOption("Low", string(model.PriorityLow)),
				).
				Value(priority),
			huh.NewInput().
				Title("Deadline").
				Placeholder("YYYY-MM-DD (optional)").
				Value(deadline).
				Validate(validateOptionalDate),
			huh.NewText().
				Title("Note").
				Placeholder("Optional details...").
				Value(note),
		),
	)
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateOptionalDate(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if model.NormalizeDeadline(s) == nil {
		return errors.New("use the YYYY-MM-DD format")
	}
	return nil
}

func newDoneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "done ID",
		Short: "Mark a task as done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			if _, err := s.GetTask(cmd.Context(), id); err != nil {
				return err
			}
			if err := s.MarkDone(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), theme.SuccessStyle.Render(fmt.Sprintf("Task #%d marked as done", id)))
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			if _, err := s.GetTask(cmd.Context(), id); err != nil {
				return err
			}
			if err := s.DeleteTask(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), theme.SuccessStyle.Render(fmt.Sprintf("Task #%d deleted", id)))
			return nil
		},
	}
}

func parseTaskID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", arg)
	}
	return id, nil
}
