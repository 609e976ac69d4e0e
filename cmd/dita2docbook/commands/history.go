package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	cerrors "git.home.luguber.info/inful/dita2docbook/internal/errors"
	"git.home.luguber.info/inful/dita2docbook/internal/eventstore"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	DB    string `name:"db" required:"" type:"path" help:"SQLite event store written by runs with events.sqlite"`
	Limit int    `short:"n" default:"20" help:"Number of runs to show"`
	RunID string `name:"run" help:"Show the events of a single run"`
}

func (h *HistoryCmd) Run(g *Global, _ *CLI) error {
	store, err := eventstore.NewSQLiteStore(h.DB)
	if err != nil {
		return cerrors.EventSinkError("sqlite", err).WithContext("path", h.DB)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	if h.RunID != "" {
		events, err := store.GetByRunID(ctx, h.RunID)
		if err != nil {
			return cerrors.EventSinkError("sqlite", err)
		}
		for _, e := range events {
			fmt.Fprintf(g.Stdout, "%s  %-22s %s\n", e.Timestamp().Format(time.RFC3339), e.Type(), e.Payload())
		}
		return nil
	}

	proj := eventstore.NewRunHistoryProjection(store, h.Limit)
	if err := proj.Rebuild(ctx); err != nil {
		return cerrors.EventSinkError("sqlite", err)
	}
	tw := tabwriter.NewWriter(g.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tRUN\tSTATUS\tFILES\tCOLLISIONS\tFAILED\tDURATION\tMAP")
	for _, s := range proj.History() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			s.StartedAt.Local().Format(time.DateTime),
			s.RunID,
			s.Status,
			s.FileCount,
			s.Collisions,
			failedCell(s.Failed),
			s.Duration.Round(time.Millisecond),
			s.RootMap)
	}
	return tw.Flush()
}

func failedCell(files []string) string {
	if len(files) == 0 {
		return "-"
	}
	return strings.Join(files, ",")
}
