package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/vk/dsipipe/internal/app"
	"github.com/vk/dsipipe/internal/atlas"
	"github.com/vk/dsipipe/internal/fsl"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/vk/dsipipe/modules/dsistudio"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// Environment variables backing the flags.
const (
	EnvWorkers    = "DSIPIPE_WORKERS"
	EnvLogLevel   = "DSIPIPE_LOG_LEVEL"
	EnvLogFormat  = "DSIPIPE_LOG_FORMAT"
	EnvLedger     = "DSIPIPE_LEDGER"
	EnvSMTPAddr   = "DSIPIPE_SMTP_ADDR"
	EnvSMTPFrom   = "DSIPIPE_SMTP_FROM"
	EnvNotifyURL  = "DSIPIPE_NOTIFY_URL"
	EnvStatusPort = "DSIPIPE_STATUS_PORT"
)

type options struct {
	cfg    app.Config
	fslDir string
}

// NewRootCommand builds the command tree writing to outW.
func NewRootCommand(outW io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "dsipipe",
		Short:         "Diffusion MRI pipeline runner for DSI Studio and FSL",
		Long:          "dsipipe assembles a pipeline file into a graph of DSI Studio and FSL steps and runs it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(outW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError("%s", err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&opts.cfg.LogFormat, "log-format", getEnv(EnvLogFormat, "text"), "Log output format. Options: 'text' or 'json'.")
	pf.StringVar(&opts.cfg.LogLevel, "log-level", getEnv(EnvLogLevel, "info"), "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.IntVar(&opts.cfg.Workers, "workers", getEnvInt(EnvWorkers, 4), "Number of concurrent workers for the executor.")
	pf.StringVar(&opts.cfg.LedgerPath, "ledger", getEnv(EnvLedger, defaultLedger()), "SQLite run ledger. Empty disables it.")
	pf.StringVar(&opts.cfg.DSIStudioBin, "dsi-studio", os.Getenv(dsistudio.EnvBinary), "dsi_studio executable.")
	pf.StringVar(&opts.cfg.AtlasDir, "dsidir", os.Getenv(atlas.EnvDir), "DSI Studio directory holding the atlases.")
	pf.StringVar(&opts.fslDir, "fsldir", os.Getenv(fsl.EnvDir), "FSL installation directory.")

	root.AddCommand(newRunCommand(opts), newPlanCommand(opts), newHistoryCommand(opts), newStepsCommand(opts))
	return root
}

// Execute runs the command tree with args.
func Execute(ctx context.Context, args []string, outW io.Writer) error {
	root := NewRootCommand(outW)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (o *options) config(path string) (*app.Config, error) {
	cfg := o.cfg
	cfg.ConfigPath = path
	if o.fslDir != "" {
		cfg.FSLBinDir = filepath.Join(o.fslDir, "bin")
	}
	checked, err := app.NewConfig(cfg)
	if err != nil {
		return nil, usageError("%s", err)
	}
	return checked, nil
}

func pipelineArg(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return usageError("%s needs exactly one pipeline file, got %d arguments", cmd.Name(), len(args))
	}
	return nil
}

func newRunCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Assemble and execute a pipeline",
		Args:  pipelineArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(args[0])
			if err != nil {
				return err
			}
			a, err := app.NewApp(cmd.OutOrStdout(), cfg)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.cfg.StatusPort, "status-port", getEnvInt(EnvStatusPort, 0), "Port for the /health and /status server. 0 is disabled.")
	f.StringVar(&opts.cfg.SMTPAddr, "smtp-addr", os.Getenv(EnvSMTPAddr), "SMTP relay for the completion email.")
	f.StringVar(&opts.cfg.SMTPFrom, "smtp-from", os.Getenv(EnvSMTPFrom), "Sender address of the completion email.")
	f.StringVar(&opts.cfg.NotifyURL, "notify-url", os.Getenv(EnvNotifyURL), "socket.io server receiving status events.")
	return cmd
}

func newPlanCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <pipeline>",
		Short: "Assemble a pipeline and print every step's command without running it",
		Args:  pipelineArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(args[0])
			if err != nil {
				return err
			}
			cfg.LedgerPath = ""
			a, err := app.NewApp(cmd.ErrOrStderr(), cfg)
			if err != nil {
				return err
			}
			return a.Plan(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newHistoryCommand(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.cfg.LedgerPath == "" {
				return usageError("history needs a ledger; set --ledger or %s", EnvLedger)
			}
			return app.WriteHistory(cmd.Context(), cmd.OutOrStdout(), opts.cfg.LedgerPath, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to list.")
	return cmd
}

func newStepsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List every registered step type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.ValidateRuntime(opts.cfg)
			if err != nil {
				return usageError("%s", err)
			}
			modules, err := app.CoreModules(cfg)
			if err != nil {
				return err
			}
			reg, err := registry.New(nil, modules...)
			if err != nil {
				return err
			}
			return app.WriteStepTypes(cmd.OutOrStdout(), reg)
		},
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func defaultLedger() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "dsipipe", "ledger.db")
}
