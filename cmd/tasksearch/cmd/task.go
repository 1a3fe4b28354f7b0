package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
	"github.com/Aman-CERP/tasksearch/internal/output"
	"github.com/Aman-CERP/tasksearch/internal/store"
)

// taskFlags are the field flags shared by task add and task update.
type taskFlags struct {
	title       string
	description string
	status      string
	priority    string
	assignee    int64
	creator     int64
	start       string
	end         string
	jira        string
	prs         string
}

func (f *taskFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.title, "title", "t", "", "Task title")
	fs.StringVarP(&f.description, "description", "d", "", "Task description")
	fs.StringVarP(&f.status, "status", "s", "", "pending, in_progress, completed or overdue")
	fs.StringVarP(&f.priority, "priority", "p", "", "high, medium or low")
	fs.Int64Var(&f.assignee, "assignee", 0, "Assigned user id (0 for none)")
	fs.StringVar(&f.start, "start", "", "Start date (YYYY-MM-DD or RFC 3339)")
	fs.StringVar(&f.end, "end", "", "End date (YYYY-MM-DD or RFC 3339)")
	fs.StringVar(&f.jira, "jira", "", "Jira link")
	fs.StringVar(&f.prs, "prs", "", "Pull request links")
}

func (f *taskFlags) input() (store.TaskInput, error) {
	in := store.TaskInput{
		Title:            f.title,
		Description:      f.description,
		Status:           store.Status(f.status),
		Priority:         store.Priority(f.priority),
		AssigneeID:       f.assignee,
		CreatorID:        f.creator,
		JiraLink:         f.jira,
		PullRequestLinks: f.prs,
	}
	var err error
	if in.StartDate, err = parseDateFlag("start", f.start); err != nil {
		return in, err
	}
	if in.EndDate, err = parseDateFlag("end", f.end); err != nil {
		return in, err
	}
	return in, nil
}

// patch sets only the fields whose flags were given.
func (f *taskFlags) patch(fs *pflag.FlagSet) (store.TaskPatch, error) {
	var p store.TaskPatch
	if fs.Changed("title") {
		p.Title = &f.title
	}
	if fs.Changed("description") {
		p.Description = &f.description
	}
	if fs.Changed("status") {
		s := store.Status(f.status)
		p.Status = &s
	}
	if fs.Changed("priority") {
		pr := store.Priority(f.priority)
		p.Priority = &pr
	}
	if fs.Changed("assignee") {
		p.AssigneeID = &f.assignee
	}
	if fs.Changed("start") {
		t, err := parseDateFlag("start", f.start)
		if err != nil {
			return p, err
		}
		p.StartDate = &t
	}
	if fs.Changed("end") {
		t, err := parseDateFlag("end", f.end)
		if err != nil {
			return p, err
		}
		p.EndDate = &t
	}
	if fs.Changed("jira") {
		p.JiraLink = &f.jira
	}
	if fs.Changed("prs") {
		p.PullRequestLinks = &f.prs
	}
	return p, nil
}

func newTaskCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, inspect and change tasks",
	}
	cmd.AddCommand(
		newTaskAddCmd(root),
		newTaskGetCmd(root),
		newTaskListCmd(root),
		newTaskUpdateCmd(root),
		newTaskStatusCmd(root),
		newTaskAssignCmd(root),
		newTaskDeleteCmd(root),
	)
	return cmd
}

func newTaskAddCmd(root *rootOptions) *cobra.Command {
	var flags taskFlags

	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Create a task and index it",
		Example: `  tasksearch task add "Renew TLS certificates" -d "certs expire in march" -p high
  tasksearch task add -t "Migrate billing DB" --assignee 2 --start 2026-01-05`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.title = args[0]
			}
			in, err := flags.input()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := root.open(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			task, err := a.service.CreateTask(ctx, in)
			return printChanged(cmd, root, task, err, "Created")
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().Int64Var(&flags.creator, "creator", 0, "Creating user id (0 for none)")
	return cmd
}

func newTaskGetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("task id", args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := root.open(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			task, err := a.service.GetTask(ctx, id)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if root.jsonOutput {
				return out.JSON(task)
			}
			out.Task(task)
			return nil
		},
	}
}

func newTaskListCmd(root *rootOptions) *cobra.Command {
	var (
		userID      int64
		status      string
		from, to    string
		skip, limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Long: `List tasks by priority, or filter by assignee, status or date range.
At most one filter may be given; --from and --to go together.`,
		Example: `  tasksearch task list
  tasksearch task list --status in_progress
  tasksearch task list --from 2026-01-01 --to 2026-03-31`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page := store.Page{Skip: skip, Limit: limit}
			fs := cmd.Flags()

			ctx := cmd.Context()
			a, err := root.open(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			list := func(ctx context.Context) ([]*store.Task, error) {
				return a.service.ListTasks(ctx, page)
			}
			switch {
			case fs.Changed("user"):
				list = func(ctx context.Context) ([]*store.Task, error) {
					return a.service.ListByUser(ctx, userID, page)
				}
			case fs.Changed("status"):
				list = func(ctx context.Context) ([]*store.Task, error) {
					return a.service.ListByStatus(ctx, store.Status(status), page)
				}
			case fs.Changed("from") || fs.Changed("to"):
				start, err := parseDateFlag("from", from)
				if err != nil {
					return err
				}
				end, err := parseDateFlag("to", to)
				if err != nil {
					return err
				}
				list = func(ctx context.Context) ([]*store.Task, error) {
					return a.service.ListByDateRange(ctx, start, end, page)
				}
			}

			tasks, err := list(ctx)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if root.jsonOutput {
				return out.JSON(tasks)
			}
			out.Tasks(tasks)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "Only tasks assigned to this user id")
	cmd.Flags().StringVar(&status, "status", "", "Only tasks with this status")
	cmd.Flags().StringVar(&from, "from", "", "Start of the date range")
	cmd.Flags().StringVar(&to, "to", "", "End of the date range")
	cmd.Flags().IntVar(&skip, "skip", 0, "Rows to skip")
	cmd.Flags().IntVar(&limit, "limit", store.DefaultLimit, "Maximum rows to return")
	cmd.MarkFlagsMutuallyExclusive("user", "status", "from")
	cmd.MarkFlagsMutuallyExclusive("user", "status", "to")
	cmd.MarkFlagsRequiredTogether("from", "to")
	return cmd
}

func newTaskUpdateCmd(root *rootOptions) *cobra.Command {
	var flags taskFlags

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change task fields and re-index",
		Example: `  tasksearch task update 7 --description "also rotate the intermediate CA"
  tasksearch task update 7 --priority low --assignee 0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("task id", args[0])
			if err != nil {
				return err
			}
			patch, err := flags.patch(cmd.Flags())
			if err != nil {
				return err
			}
			if patch.Empty() {
				return taskerrors.ValidationError("nothing to update", nil).
					WithSuggestion("pass at least one field flag, see: tasksearch task update --help")
			}

			ctx := cmd.Context()
			a, err := root.open(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			task, err := a.service.UpdateTask(ctx, id, patch)
			return printChanged(cmd, root, task, err, "Updated")
		},
	}

	flags.register(cmd.Flags())
	return cmd
}

func newTaskStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set a task's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("task id", args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := root.open(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			task, err := a.service.SetStatus(ctx, id, store.Status(args[1]))
			return printChanged(cmd, root, task, err, "Updated")
		},
	}
}

func newTaskAssignCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id> <user-id>",
		Short: "Assign a task to a user (0 to unassign)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("task id", args[0])
			if err != nil {
				return err
			}
			userID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || userID < 0 {
				return taskerrors.ValidationError(fmt.Sprintf("invalid user id %q", args[1]), err)
			}

			ctx := cmd.Context()
			a, err := root.open(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			task, err := a.service.Assign(ctx, id, userID)
			return printChanged(cmd, root, task, err, "Assigned")
		},
	}
}

func newTaskDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task and its index record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("task id", args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := root.open(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if err := a.service.DeleteTask(ctx, id); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Deleted task %d", id)
			return nil
		},
	}
}

// printChanged reports a mutation. A task returned together with an error
// was committed but not indexed; the error still fails the command.
func printChanged(cmd *cobra.Command, root *rootOptions, task *store.Task, err error, verb string) error {
	if task == nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())
	if err != nil {
		out.Warningf("task %d saved but not indexed", task.ID)
	}
	if root.jsonOutput {
		if jsonErr := out.JSON(task); jsonErr != nil {
			return jsonErr
		}
		return err
	}
	out.Successf("%s task %d", verb, task.ID)
	return err
}

func parseID(name, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, taskerrors.ValidationError(fmt.Sprintf("invalid %s %q", name, s), err).
			WithSuggestion("ids are positive integers")
	}
	return id, nil
}

// parseDateFlag accepts RFC 3339 or a bare date. Empty means unset.
func parseDateFlag(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, taskerrors.ValidationError(fmt.Sprintf("invalid --%s date %q", name, s), err).
			WithDetail("field", name).
			WithSuggestion("use YYYY-MM-DD or RFC 3339")
	}
	return t, nil
}
