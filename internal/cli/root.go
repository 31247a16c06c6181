// Package cli is the projectboard command tree. Without a subcommand it
// starts the TUI.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/olivoil/projectboard/internal/app"
	"github.com/olivoil/projectboard/internal/auth"
	"github.com/olivoil/projectboard/internal/backend"
	"github.com/olivoil/projectboard/internal/config"
	"github.com/olivoil/projectboard/internal/logging"
)

// env is the state shared by every command of one invocation.
type env struct {
	// Global flags
	configPath string
	verbose    bool
	output     string

	cfg    config.Config
	log    *zap.Logger
	store  *backend.Store
	client *backend.Client
	auth   *auth.Service
	out    io.Writer
	in     io.Reader
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, auth.ErrNoSession) {
			fmt.Fprintf(os.Stderr, "sign in with: %s signin --email <email>\n", config.AppName)
		}
		return 1
	}
	return 0
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	e := &env{}
	root := newRootCmd(e)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	defer e.close()
	return root.ExecuteContext(ctx)
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   config.AppName,
		Short: "Project and module board with a live terminal UI",
		Long: `projectboard tracks projects, their modules and the team working on them.

Run without arguments to start the interactive board. Every list in the board
is a live mirror of the database: changes made by other projectboard
processes show up without a refresh.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			e.out = cmd.OutOrStdout()
			e.in = cmd.InOrStdin()
			if !needsState(cmd) {
				return nil
			}
			return e.open()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runTUI(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&e.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/projectboard/config.toml)")
	flags.BoolVarP(&e.verbose, "verbose", "v", false, "debug logging")
	flags.StringVarP(&e.output, "output", "o", formatTable, "output format: table, json or yaml")

	root.AddCommand(
		newSignupCmd(e),
		newSigninCmd(e),
		newSignoutCmd(e),
		newWhoamiCmd(e),
		newProfileCmd(e),
		newProjectCmd(e),
		newModuleCmd(e),
		newMemberCmd(e),
		newRoleCmd(e),
		newStatsCmd(e),
		newWatchCmd(e),
		newVersionCmd(e),
	)
	return root
}

func needsState(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help":
		return false
	}
	return !cmd.HasParent() || cmd.Parent().Name() != "completion"
}

// open loads the config and opens the logger, store and services.
func (e *env) open() error {
	if err := checkFormat(e.output); err != nil {
		return err
	}

	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	e.cfg = cfg

	e.log, err = logging.New(cfg.LogPath(), cfg.General.LogLevel, e.verbose)
	if err != nil {
		return err
	}

	e.store, err = backend.Open(cfg.General.Database,
		backend.WithLogger(e.log.Named("store")),
		backend.WithPollInterval(cfg.Feed.PollInterval),
	)
	if err != nil {
		return err
	}
	e.client = backend.NewClient(e.store, e.log.Named("client"))

	secret, err := cfg.SecretKey()
	if err != nil {
		return err
	}
	e.auth = auth.NewService(e.client, secret, cfg.Auth.SessionTTL, cfg.SessionPath(), e.log.Named("auth"))
	e.log.Debug("opened", zap.String("db", cfg.General.Database), zap.String("config", cfg.Path))
	return nil
}

func (e *env) close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil && e.log != nil {
			e.log.Warn("close store", zap.Error(err))
		}
		e.store = nil
	}
	if e.log != nil {
		_ = e.log.Sync()
	}
}

func (e *env) runTUI(ctx context.Context) error {
	profile, err := e.auth.Current(ctx)
	if err != nil {
		return err
	}
	var cmdArgs []string
	if e.configPath != "" {
		cmdArgs = append(cmdArgs, "--config", e.configPath)
	}
	return app.Run(ctx, app.Options{
		Client:      e.client,
		Profile:     profile,
		Logger:      e.log.Named("tui"),
		CommandArgs: cmdArgs,
	})
}

// require returns the signed-in profile, checked against allowed when set.
func (e *env) require(ctx context.Context, allowed func(auth.Profile) bool) (auth.Profile, error) {
	return e.auth.Require(ctx, allowed)
}

func newVersionCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(e.out, "%s %s\n", app.AppName, app.AppVersion)
			return err
		},
	}
}
