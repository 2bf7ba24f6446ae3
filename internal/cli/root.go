package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"rmsched/internal/control"
	"rmsched/internal/logging"
	"rmsched/internal/sched"
)

var (
	flagConfig    string
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    sched.Config
	logger *slog.Logger
	client *control.Client
)

// defaultServer returns the default control-channel URL, checking RMSCHED_SERVER first.
func defaultServer() string {
	if s := os.Getenv("RMSCHED_SERVER"); s != "" {
		return s
	}
	return "http://" + sched.DefaultConfig().ListenAddr
}

// NewRootCmd creates the root cobra command for rmsched.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rmsched",
		Short: "Rate-Monotonic scheduler for periodic tasks",
		Long: "rmsched admits periodic tasks under the Liu-Layland utilization bound and\n" +
			"keeps the shortest-period ready task on the processor.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = sched.Load(flagConfig)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = flagLogLevel
			}
			if flagDebug {
				cfg.LogLevel = "debug"
			}
			if cmd.Flags().Changed("log-format") {
				cfg.LogFormat = flagLogFormat
			}
			logger = logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
			client = control.NewClient(flagServer, nil)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "rmsched.yml", "Path to YAML config (missing file = defaults)")
	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "Control channel URL (or RMSCHED_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newServeCmd(),
		newDemoCmd(),
		newRegisterCmd(),
		newYieldCmd(),
		newDeregisterCmd(),
		newSendCmd(),
		newStatusCmd(),
	)

	return root
}
