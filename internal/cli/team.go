package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/olivoil/projectboard/internal/auth"
	"github.com/olivoil/projectboard/internal/backend"
	"github.com/olivoil/projectboard/internal/ui"
)

func newMemberCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "member",
		Aliases: []string{"members", "team"},
		Short:   "List and manage team members",
	}
	cmd.AddCommand(newMemberListCmd(e), newMemberAddCmd(e), newMemberRemoveCmd(e))
	return cmd
}

func newMemberListCmd(e *env) *cobra.Command {
	var q backend.MemberQuery
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List team members",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := e.require(ctx, nil); err != nil {
				return err
			}
			all, err := e.client.Members(ctx)
			if err != nil {
				return err
			}
			members := backend.FilterMembers(all, q)

			rows := make([][]string, len(members))
			for i, m := range members {
				rows[i] = []string{
					m.ID,
					m.Name,
					m.Email,
					m.RoleName,
					strconv.Itoa(m.ProjectCount),
					strconv.Itoa(m.ActiveModules),
				}
			}
			return render(e.out, e.output, members,
				[]string{"ID", "NAME", "EMAIL", "ROLE", "PROJECTS", "ACTIVE"}, rows)
		},
	}
	cmd.Flags().StringVar(&q.Role, "role", backend.FilterAll, "filter by role name")
	cmd.Flags().StringVar(&q.Search, "search", "", "match name or email")
	return cmd
}

func newMemberAddCmd(e *env) *cobra.Command {
	var in auth.SignUpInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account for a team member (admin only)",
		Long: `Create an account for a team member with the given role.

The new member signs in with the email and password set here. Your own
session is not changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := e.require(ctx, auth.Profile.CanManageTeam); err != nil {
				return err
			}
			if in.Password == "" {
				pw, err := readPassword(e.in, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				in.Password = pw
			}
			p, err := e.auth.AddMember(ctx, in)
			if err != nil {
				return err
			}
			return renderProfile(e, p, "Added")
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.RoleName, "role", "", "role: admin, pm or dev (default dev)")
	cmd.Flags().StringVar(&in.Password, "password", "", "initial password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newMemberRemoveCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a team member",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			me, err := e.require(ctx, auth.Profile.CanManageTeam)
			if err != nil {
				return err
			}
			if args[0] == me.ID {
				return errors.New("you cannot remove yourself")
			}
			if err := e.client.RemoveMember(ctx, args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(e.out, "Removed member %s\n", args[0])
			return err
		},
	}
}

func newRoleCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Inspect roles",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List roles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, err := e.client.Roles(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, len(roles))
			for i, r := range roles {
				rows[i] = []string{r.Name, r.Description}
			}
			return render(e.out, e.output, roles, []string{"NAME", "DESCRIPTION"}, rows)
		},
	})
	return cmd
}

func newStatsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := e.require(ctx, nil); err != nil {
				return err
			}
			st, err := e.client.DashboardStats(ctx)
			if err != nil {
				return err
			}
			if e.output != formatTable {
				return render(e.out, e.output, st, nil, nil)
			}

			if err := renderValue(e.out, e.output, st, [][2]string{
				{"projects", strconv.Itoa(st.TotalProjects)},
				{"modules", strconv.Itoa(st.TotalModules)},
				{"completed", strconv.Itoa(st.CompletedModules)},
				{"members", strconv.Itoa(st.ActiveMembers)},
			}); err != nil {
				return err
			}
			fmt.Fprintln(e.out)

			rows := make([][]string, 0, len(st.ModulesByStatus)+len(st.SprintProgress))
			for _, c := range st.ModulesByStatus {
				rows = append(rows, []string{"modules", c.Label, strconv.Itoa(c.N)})
			}
			for _, sp := range st.SprintProgress {
				rows = append(rows, []string{"sprint", sp.Sprint, fmt.Sprintf("%d/%d", sp.Completed, sp.Total)})
			}
			_, err = fmt.Fprintln(e.out, renderTable([]string{"GROUP", "NAME", "COUNT"}, rows))
			if err == nil && st.TotalModules > 0 {
				_, err = fmt.Fprintln(e.out, ui.ProgressBar(st.CompletedModules, st.TotalModules, 30))
			}
			return err
		},
	}
}
