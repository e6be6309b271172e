package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/vk/dsipipe/internal/executor"
	"github.com/vk/dsipipe/internal/ledger"
	"github.com/vk/dsipipe/internal/notify"
)

// notifyDialTimeout bounds the socket.io handshake.
const notifyDialTimeout = 5 * time.Second

// Run assembles the pipeline and executes it. A failed step skips only the
// steps that depend on it; the returned error joins every root cause.
func (a *App) Run(ctx context.Context) error {
	ctx = a.Context(ctx)
	a.logger.Debug("App.Run method started.")

	g, err := a.Assemble(ctx)
	if err != nil {
		return err
	}
	if g.Len() == 0 {
		a.logger.Warn("No nodes found in graph, execution not required.")
		return nil
	}

	rec := &recorder{pipeline: a.model.Name}
	if a.config.LedgerPath != "" {
		store, err := ledger.Open(a.config.LedgerPath)
		if err != nil {
			return fmt.Errorf("failed to open run ledger: %w", err)
		}
		defer store.Close()
		rec.store = store
		rec.runID, err = store.CreateRun(ctx, &ledger.Run{Pipeline: a.model.Name, ConfigPath: a.config.ConfigPath})
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		ctx = ctxlog.With(ctx, "run_id", rec.runID)
	}
	notifier, closeNotifier := a.notifier(ctx)
	defer closeNotifier()
	rec.notifier = notifier

	exec := executor.New(g, executor.Options{
		Workers:     a.config.Workers,
		Observer:    rec,
		NodeContext: rec.nodeContext,
	})
	if a.config.StatusPort > 0 {
		srv, err := startStatusServer(ctx, a.config.StatusPort, a.model.Name, exec.Snapshot)
		if err != nil {
			return err
		}
		defer srv.close(ctx)
	}

	rec.notify(ctx, notify.Event{Kind: notify.RunStarted, Success: true})
	a.logger.Info("Starting pipeline.", "nodes", g.Len(), "workers", a.config.Workers)
	runErr := exec.Run(ctx)

	status := ledger.RunStatusComplete
	if runErr != nil {
		status = ledger.RunStatusFailed
	}
	if rec.store != nil {
		if err := rec.store.FinishRun(context.WithoutCancel(ctx), rec.runID, status, runErr); err != nil {
			a.logger.Warn("Failed to record run result.", "error", err)
		}
	}
	done := notify.Event{Kind: notify.RunFinished, Success: runErr == nil, Executed: rec.Executed()}
	if runErr != nil {
		done.Error = runErr.Error()
	}
	rec.notify(context.WithoutCancel(ctx), done)

	if runErr != nil {
		return fmt.Errorf("execution failed: %w", runErr)
	}
	a.logger.Info("Pipeline finished.", "executed", len(done.Executed))
	return nil
}

// notifier builds the configured notification channels. Channels that
// cannot be reached are logged and left out.
func (a *App) notifier(ctx context.Context) (notify.Notifier, func()) {
	var (
		multi   notify.Multi
		closers []func() error
	)
	if a.config.SMTPAddr != "" && a.model.Email != "" {
		multi = append(multi, notify.NewEmail(a.config.SMTPAddr, a.config.SMTPFrom, a.model.Email))
	}
	if a.config.NotifyURL != "" {
		sio, err := notify.DialSocketIO(ctx, a.config.NotifyURL, notifyDialTimeout)
		if err != nil {
			a.logger.Warn("Status channel unavailable, continuing without it.", "url", a.config.NotifyURL, "error", err)
		} else {
			multi = append(multi, sio)
			closers = append(closers, sio.Close)
		}
	}
	closeAll := func() {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		if err := errors.Join(errs...); err != nil {
			a.logger.Warn("Failed to close notifier.", "error", err)
		}
	}
	if len(multi) == 0 {
		return nil, closeAll
	}
	return multi, closeAll
}
