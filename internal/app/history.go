package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/vk/dsipipe/internal/ledger"
)

// WriteHistory lists the most recent runs in the ledger at path, with the
// steps of the latest one.
func WriteHistory(ctx context.Context, w io.Writer, path string, limit int) error {
	store, err := ledger.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open run ledger: %w", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPIPELINE\tSTATUS\tSTARTED\tDURATION")
	for _, r := range runs {
		duration := "-"
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.CreatedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Pipeline, r.Status, r.CreatedAt.Format(time.DateTime), duration)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	latest, err := store.LatestRun(ctx)
	if errors.Is(err, ledger.ErrNoRuns) {
		return nil
	}
	if err != nil {
		return err
	}
	steps, err := store.Steps(ctx, latest.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nSteps of run %d:\n", latest.ID)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tTYPE\tSTATUS\tEXIT\tERROR")
	for _, s := range steps {
		exit := "-"
		if s.ExitCode != nil {
			exit = fmt.Sprint(*s.ExitCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Node, s.StepType, s.Status, exit, s.Error)
	}
	return tw.Flush()
}
