package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docchat/internal/bootstrap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "docchatctl",
		Short:        "docchat operator commands",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		newRegisterCmd(),
		newIngestCmd(),
		newRequeueCmd(),
		newSetCredentialCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp runs fn against a fully wired application and closes it after.
func withApp(ctx context.Context, fn func(app *bootstrap.App) error) error {
	app, err := bootstrap.New(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close resources failed: %v\n", err)
		}
	}()
	return fn(app)
}
