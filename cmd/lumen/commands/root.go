package commands

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/openfluke/lumen/config"
	"github.com/openfluke/lumen/logging"
)

var (
	cfgFile string
	verbose bool

	cfg       *config.Config
	logCloser io.Closer
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "lumen",
	Short: "A WebGPU compute ray tracer",
	Long: `Lumen renders triangle scenes with a progressive compute-shader ray
tracer. The kernel runs once per frame over every pixel of the image and the
result is averaged across frames before it is written out.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

// Execute runs the root command. An interrupt cancels the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.lumen/lumen.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// setup loads the configuration and starts logging before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	logCloser, err = logging.Init(logging.Options{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
	})
	return err
}
