package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/olivoil/projectboard/internal/backend"
	"github.com/olivoil/projectboard/internal/mirror"
)

// row is an untyped mirrored record.
type row struct {
	raw json.RawMessage
}

func (r *row) UnmarshalJSON(b []byte) error {
	r.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (r row) MarshalJSON() ([]byte, error) { return r.raw, nil }

func (r row) RecordID() string { return gjson.GetBytes(r.raw, "id").String() }

// watchLine is one applied change as printed by watch.
type watchLine struct {
	Seq   int64  `json:"seq" yaml:"seq"`
	Kind  string `json:"kind" yaml:"kind"`
	ID    string `json:"id" yaml:"id"`
	Rows  int    `json:"rows" yaml:"rows"`
	Table string `json:"table" yaml:"table"`
}

func newWatchCmd(e *env) *cobra.Command {
	var (
		filter string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "watch <table>",
		Short: "Mirror a table and print every change",
		Long: `Mirror a table and print every change applied to it, followed by the
mirrored row count. Runs until interrupted, or until --limit changes were seen.

Tables: ` + strings.Join(backend.Tables(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: backend.Tables(),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := e.require(ctx, nil); err != nil {
				return err
			}
			table := args[0]
			if !slices.Contains(backend.Tables(), table) {
				return fmt.Errorf("unknown table %q", table)
			}
			var f *backend.Filter
			if filter != "" {
				var err error
				if f, err = backend.ParseFilter(filter); err != nil {
					return err
				}
			}
			return e.watch(ctx, table, f, limit)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "only rows where column=value")
	cmd.Flags().IntVar(&limit, "limit", 0, "exit after this many changes (0 runs until interrupted)")
	return cmd
}

func (e *env) watch(ctx context.Context, table string, f *backend.Filter, limit int) error {
	ctx, cancel := context.WithCancel(ctx)
	m := mirror.New[row](e.store, table, f, nil, mirror.WithLogger(e.log.Named("watch")))

	events := make(chan watchLine, 16)
	sub, err := e.store.Subscribe(table, f, func(ev backend.ChangeEvent) {
		m.Apply(ev)
		id := gjson.GetBytes(ev.New, "id").String()
		if id == "" {
			id = gjson.GetBytes(ev.Old, "id").String()
		}
		select {
		case events <- watchLine{Seq: ev.Seq, Kind: string(ev.Kind), ID: id, Rows: m.Len(), Table: ev.Table}:
		case <-ctx.Done():
		}
	})
	if err != nil {
		cancel()
		return err
	}
	defer func() {
		// Unblocks a handler waiting on events.
		cancel()
		if err := e.store.Unsubscribe(sub); err != nil {
			e.log.Warn("unsubscribe", zap.String("topic", sub.Topic()), zap.Error(err))
		}
	}()

	if err := m.Refresh(ctx); err != nil {
		return err
	}
	if e.output == formatTable {
		fmt.Fprintf(e.out, "watching %s (%d rows)\n", sub.Topic(), m.Len())
	}

	for seen := 0; limit <= 0 || seen < limit; seen++ {
		select {
		case <-ctx.Done():
			return nil
		case l := <-events:
			if e.output == formatTable {
				fmt.Fprintf(e.out, "#%d %-6s %s rows=%d\n", l.Seq, l.Kind, l.ID, l.Rows)
				continue
			}
			if err := render(e.out, e.output, l, nil, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
