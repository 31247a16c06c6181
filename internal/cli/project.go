package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/olivoil/projectboard/internal/auth"
	"github.com/olivoil/projectboard/internal/backend"
	"github.com/olivoil/projectboard/internal/status"
	"github.com/olivoil/projectboard/internal/ui"
)

func newProjectCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects", "p"},
		Short:   "List and manage projects",
	}
	cmd.AddCommand(
		newProjectListCmd(e),
		newProjectAddCmd(e),
		newProjectEditCmd(e),
		newProjectStatusCmd(e),
		newProjectDeleteCmd(e),
	)
	return cmd
}

func newProjectListCmd(e *env) *cobra.Command {
	var (
		q      backend.ProjectQuery
		sortBy string
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List projects",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := e.require(ctx, nil); err != nil {
				return err
			}
			all, err := e.client.Projects(ctx)
			if err != nil {
				return err
			}
			projects := backend.SortProjects(backend.FilterProjects(all, q), sortBy)

			rows := make([][]string, len(projects))
			for i, p := range projects {
				rows[i] = []string{
					p.ID,
					ui.Truncate(p.Title, 40),
					p.Stack,
					p.Sprint,
					ui.StatusLabel(p.Status, status.KindProject),
					ui.FormatTime(p.CreatedAt),
				}
			}
			return render(e.out, e.output, projects,
				[]string{"ID", "TITLE", "STACK", "SPRINT", "STATUS", "CREATED"}, rows)
		},
	}
	cmd.Flags().StringVar(&q.Status, "status", backend.FilterAll, "filter by status")
	cmd.Flags().StringVar(&q.Sprint, "sprint", backend.FilterAll, "filter by sprint")
	cmd.Flags().StringVar(&q.Search, "search", "", "match title or stack")
	cmd.Flags().StringVar(&sortBy, "sort", backend.SortCreated, "sort by created, title or status")
	return cmd
}

func newProjectAddCmd(e *env) *cobra.Command {
	in := backend.NewProject{}
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			me, err := e.require(ctx, auth.Profile.CanManageProjects)
			if err != nil {
				return err
			}
			in.Title = args[0]
			in.CreatedBy = me.ID
			id, err := e.client.CreateProject(ctx, in)
			if err != nil {
				return err
			}
			p, err := e.client.Project(ctx, id)
			if err != nil {
				return err
			}
			return renderProject(e, p)
		},
	}
	cmd.Flags().StringVar(&in.Stack, "stack", "", "tech stack")
	cmd.Flags().StringVar(&in.Sprint, "sprint", "", "sprint name")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "markdown notes")
	cmd.Flags().StringVar(&in.Status, "status", "", "initial status (default not_started)")
	cmd.Flags().StringSliceVar(&in.Members, "member", nil, "user id to add as member (repeatable)")
	return cmd
}

func newProjectEditCmd(e *env) *cobra.Command {
	var title, stack, sprint, notes string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a project's title, stack, sprint or notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := e.require(ctx, auth.Profile.CanManageProjects); err != nil {
				return err
			}
			patch := backend.Row{}
			for flag, v := range map[string]string{"title": title, "stack": stack, "sprint": sprint, "notes": notes} {
				if cmd.Flags().Changed(flag) {
					patch[flag] = strings.TrimSpace(v)
				}
			}
			if len(patch) == 0 {
				return errors.New("nothing to change: pass --title, --stack, --sprint or --notes")
			}
			if err := e.client.UpdateProject(ctx, args[0], patch); err != nil {
				return err
			}
			p, err := e.client.Project(ctx, args[0])
			if err != nil {
				return err
			}
			return renderProject(e, p)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&stack, "stack", "", "new tech stack")
	cmd.Flags().StringVar(&sprint, "sprint", "", "new sprint name")
	cmd.Flags().StringVar(&notes, "notes", "", "new markdown notes")
	return cmd
}

func newProjectStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set a project's status",
		Long:  "Set a project's status. Module spellings such as in-progress are accepted.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := e.require(ctx, auth.Profile.CanManageProjects); err != nil {
				return err
			}
			if err := e.client.UpdateProjectStatus(ctx, args[0], args[1]); err != nil {
				return err
			}
			p, err := e.client.Project(ctx, args[0])
			if err != nil {
				return err
			}
			return renderProject(e, p)
		},
	}
}

func newProjectDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a project and its modules",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := e.require(ctx, auth.Profile.CanManageProjects); err != nil {
				return err
			}
			if err := e.client.DeleteProject(ctx, args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(e.out, "Deleted project %s\n", args[0])
			return err
		},
	}
}

func renderProject(e *env, p backend.Project) error {
	return renderValue(e.out, e.output, p, [][2]string{
		{"id", p.ID},
		{"title", p.Title},
		{"stack", p.Stack},
		{"sprint", p.Sprint},
		{"status", ui.StatusLabel(p.Status, status.KindProject)},
		{"created", ui.FormatTime(p.CreatedAt)},
	})
}
