// Command rollctl runs maintenance tasks against the rollcall store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rollcall/internal/app"
	"rollcall/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "rollctl",
	Short:         "Administer a rollcall installation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// withApp builds the services from the environment and closes them after fn.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.New(ctx, config.Load(), nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
