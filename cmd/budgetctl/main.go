// Command budgetctl reads and edits a budget from the terminal, against the
// same storage backends as the server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ayushsunny/Budgease/internal/cli"
)

func main() {
	cli.LoadEnvFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(newApp(os.Stdout, os.Stderr)).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "budgetctl",
		Short: "Manage your monthly budget from the terminal",
		Long: `budgetctl shows and edits a personal budget: salary, categories with
allocations, and the expenses logged against them.

Without --token the shared local budget is used.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.setupLogger(cmd.ErrOrStderr())
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.PersistentFlags().StringVar(&a.token, "token", os.Getenv("BUDGEASE_TOKEN"), "bearer token to sign in with (default $BUDGEASE_TOKEN)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(showCmd(a))
	root.AddCommand(watchCmd(a))
	root.AddCommand(salaryCmd(a))
	root.AddCommand(categoryCmd(a))
	root.AddCommand(expenseCmd(a))
	root.AddCommand(exportCmd(a))
	root.AddCommand(tokenCmd(a))
	return root
}
