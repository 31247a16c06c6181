package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olivoil/projectboard/internal/auth"
	"github.com/olivoil/projectboard/internal/backend"
	"github.com/olivoil/projectboard/internal/status"
	"github.com/olivoil/projectboard/internal/ui"
)

func newModuleCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "module",
		Aliases: []string{"modules", "m"},
		Short:   "List and manage the modules of a project",
	}
	cmd.AddCommand(
		newModuleListCmd(e),
		newModuleAddCmd(e),
		newModuleStatusCmd(e),
		newModuleDeleteCmd(e),
	)
	return cmd
}

func newModuleListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "list <project-id>",
		Aliases: []string{"ls"},
		Short:   "List a project's modules",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := e.require(ctx, nil); err != nil {
				return err
			}
			if _, err := e.client.Project(ctx, args[0]); err != nil {
				return err
			}
			modules, err := e.client.Modules(ctx, args[0])
			if err != nil {
				return err
			}
			names, err := memberNames(e, cmd)
			if err != nil {
				return err
			}

			rows := make([][]string, len(modules))
			for i, m := range modules {
				rows[i] = []string{
					m.ID,
					ui.Truncate(m.Name, 40),
					ui.StatusLabel(m.Status, status.KindModule),
					names[m.AssignedTo],
				}
			}
			if err := render(e.out, e.output, modules, []string{"ID", "NAME", "STATUS", "ASSIGNEE"}, rows); err != nil {
				return err
			}
			if e.output == formatTable && len(modules) > 0 {
				done, total, pct := backend.ModuleProgress(modules)
				_, err = fmt.Fprintf(e.out, "%d/%d done (%d%%)\n", done, total, pct)
			}
			return err
		},
	}
}

func newModuleAddCmd(e *env) *cobra.Command {
	in := backend.NewModule{}
	cmd := &cobra.Command{
		Use:   "add <project-id> <name>",
		Short: "Add a module to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := e.require(ctx, auth.Profile.CanManageProjects); err != nil {
				return err
			}
			in.ProjectID = args[0]
			in.Name = args[1]
			id, err := e.client.CreateModule(ctx, in)
			if err != nil {
				return err
			}
			m, err := e.client.Module(ctx, id)
			if err != nil {
				return err
			}
			return renderModule(e, m)
		},
	}
	cmd.Flags().StringVar(&in.Description, "description", "", "module description")
	cmd.Flags().StringVar(&in.AssignedTo, "assignee", "", "user id of the assignee")
	cmd.Flags().StringVar(&in.Status, "status", "", "initial status (default not-started)")
	return cmd
}

func newModuleStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set a module's status",
		Long: `Set a module's status. Project spellings such as in_progress are accepted.
Admins, project managers and the module's assignee may change it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			me, err := e.require(ctx, nil)
			if err != nil {
				return err
			}
			m, err := e.client.Module(ctx, args[0])
			if err != nil {
				return err
			}
			if !me.CanManageProjects() && m.AssignedTo != me.ID {
				return fmt.Errorf("%w: module %s is not assigned to you", auth.ErrForbidden, m.ID)
			}
			if err := e.client.UpdateModuleStatus(ctx, m.ID, args[1]); err != nil {
				return err
			}
			if m, err = e.client.Module(ctx, m.ID); err != nil {
				return err
			}
			return renderModule(e, m)
		},
	}
}

func newModuleDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a module",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := e.require(ctx, auth.Profile.CanManageProjects); err != nil {
				return err
			}
			if err := e.client.DeleteModule(ctx, args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(e.out, "Deleted module %s\n", args[0])
			return err
		},
	}
}

func renderModule(e *env, m backend.Module) error {
	return renderValue(e.out, e.output, m, [][2]string{
		{"id", m.ID},
		{"project", m.ProjectID},
		{"name", m.Name},
		{"status", ui.StatusLabel(m.Status, status.KindModule)},
		{"assignee", m.AssignedTo},
	})
}

// memberNames maps user ids to display names.
func memberNames(e *env, cmd *cobra.Command) (map[string]string, error) {
	rows, err := e.store.Query(cmd.Context(), backend.TableUsers, nil)
	if err != nil {
		return nil, err
	}
	users := backend.DecodeRows[backend.Member](rows)
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}
