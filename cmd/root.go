package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/txscreen/internal/config"
	"github.com/sells-group/txscreen/internal/fetcher"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "txscreen",
	Short: "Screen transactions against sanctions lists",
	Long:  "Splits a transaction feed into flagged and review files by checking sender and receiver countries against sanctioned jurisdictions and party names against a blacklist.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// newOpener builds the input opener from the fetch settings.
func newOpener() *fetcher.Opener {
	return fetcher.NewOpener(fetcher.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Fetch.MaxRetries,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
