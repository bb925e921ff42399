// syncctl - консольное управление синхронизацией с панелью RemnaWave.
// Использует ту же базу и ту же блокировку, что и bot-service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"remna-bot/internal/app"
	"remna-bot/internal/config"
	"remna-bot/internal/logging"
)

var (
	cfg     *config.Config
	current *app.App
)

var rootCmd = &cobra.Command{
	Use:   "syncctl",
	Short: "RemnaWave sync operations",
	Long: `Run RemnaWave synchronization tasks from the command line.

Configuration is read from the environment (and .env), the same way
bot-service reads it. Set REDIS_ADDR or SYNC_LOCK_FILE to keep syncctl
and bot-service from running at the same time.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if closer := logging.Setup(cfg.LogLevel, cfg.LogFile); closer != nil {
			cobra.OnFinalize(func() { closer.Close() })
		}

		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		current = a
		cobra.OnFinalize(func() {
			if err := a.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: close: %v\n", err)
			}
		})
		return nil
	},
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
