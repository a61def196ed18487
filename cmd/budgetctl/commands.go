package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ayushsunny/Budgease/internal/auth"
	"github.com/Ayushsunny/Budgease/internal/core"
	"github.com/Ayushsunny/Budgease/internal/export"
	"github.com/Ayushsunny/Budgease/internal/store"
)

func showCmd(a *app) *cobra.Command {
	var expensesOf string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the budget summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				if expensesOf != "" {
					c, err := findCategory(st, expensesOf)
					if err != nil {
						return err
					}
					renderExpenses(a.out, c)
					return nil
				}
				renderSummary(a.out, st.Identity(), st.Revision(), st.Summary())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&expensesOf, "expenses", "", "list the expenses of the category with this id")
	return cmd
}

func watchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show the budget and redraw it whenever it changes",
		Long: `watch keeps the budget open and prints the summary again each time it
changes, including changes made by other clients. Stop it with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withStore(ctx, func(st *store.Store) error {
				changed := make(chan struct{}, 1)
				cancel := st.Observe(func(core.Budget) {
					select {
					case changed <- struct{}{}:
					default:
					}
				})
				defer cancel()

				for {
					select {
					case <-ctx.Done():
						return nil
					case <-changed:
						renderSummary(a.out, st.Identity(), st.Revision(), st.Summary())
						fmt.Fprintln(a.out, subtleStyle.Render("updated "+time.Now().Format(time.Kitchen)))
						fmt.Fprintln(a.out)
					}
					for _, n := range a.takeNotices(store.NoticePersistence) {
						fmt.Fprintln(a.errOut, warningStyle.Render("warning: "+n.Message()))
					}
				}
			})
		},
	}
}

func salaryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "salary",
		Short: "Manage the monthly salary",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "set <amount>",
		Short:   "Set the monthly salary",
		Example: "  budgetctl salary set 2500\n  budgetctl salary set 2500,50",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			err = a.mutate(cmd.Context(), func(st *store.Store) error {
				return st.SetSalary(amount)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render("Salary set to "+money(amount)))
			return nil
		},
	})
	return cmd
}

func categoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "category",
		Aliases: []string{"cat"},
		Short:   "Add, rename, allocate or remove categories",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name...>",
		Short: "Add a category with no allocation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var created core.Category
			err := a.mutate(cmd.Context(), func(st *store.Store) error {
				c, err := st.AddCategory(strings.Join(args, " "))
				created = c
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("Added %q", created.Name))+subtleStyle.Render(" (id "+created.ID+")"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Remove a category and its expenses",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			err := a.mutate(cmd.Context(), func(st *store.Store) error {
				c, err := findCategory(st, args[0])
				if err != nil {
					return err
				}
				name = c.Name
				return st.RemoveCategory(c.ID)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("Removed %q", name)))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <id> <name...>",
		Short: "Rename a category",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args[1:], " ")
			err := a.mutate(cmd.Context(), func(st *store.Store) error {
				if _, err := findCategory(st, args[0]); err != nil {
					return err
				}
				return st.UpdateCategory(args[0], core.CategoryPatch{Name: &name})
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("Renamed to %q", strings.TrimSpace(name))))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "allocate <id> <amount>",
		Short:   "Set how much of the salary a category gets",
		Example: "  budgetctl category allocate 1 450",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			err = a.mutate(cmd.Context(), func(st *store.Store) error {
				if _, err := findCategory(st, args[0]); err != nil {
					return err
				}
				return st.EditAllocation(args[0], amount)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render("Allocation set to "+money(amount)))
			return nil
		},
	})
	return cmd
}

func expenseCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expense",
		Short: "Log spending against a category",
	}

	var note, date string
	add := &cobra.Command{
		Use:     "add <category-id> <amount>",
		Short:   "Log an expense",
		Example: "  budgetctl expense add 2 12,50 --note lunch\n  budgetctl expense add 2 80 --date 2024-03-01T12:00:00Z",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			in := core.ExpenseInput{Amount: amount, Date: date, Note: strings.TrimSpace(note)}
			var category string
			err = a.mutate(cmd.Context(), func(st *store.Store) error {
				c, err := findCategory(st, args[0])
				if err != nil {
					return err
				}
				category = c.Name
				_, err = st.AddExpense(c.ID, in)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("Logged %s in %q", money(amount), category)))
			return nil
		},
	}
	add.Flags().StringVar(&note, "note", "", "what the money was spent on")
	add.Flags().StringVar(&date, "date", "", "when it was spent, RFC 3339 (default now)")
	cmd.AddCommand(add)
	return cmd
}

func exportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the budget to a spreadsheet",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "xlsx <file>",
		Short: "Write the budget to an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(st *store.Store) (err error) {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer func() {
					if cerr := f.Close(); cerr != nil && err == nil {
						err = cerr
					}
				}()
				if err := export.WriteXLSX(f, st.Snapshot()); err != nil {
					return fmt.Errorf("write %s: %w", args[0], err)
				}
				fmt.Fprintln(a.out, successStyle.Render("Exported to "+args[0]))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sheets",
		Short: "Write the budget to the configured Google spreadsheet",
		Long: `sheets replaces the budget's tab in GOOGLE_SPREADSHEET_ID with the current
summary, using the service account from GOOGLE_SERVICE_ACCOUNT_FILE or
GOOGLE_SERVICE_ACCOUNT_JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if !cfg.SheetsEnabled() {
				return errors.New("google sheets export is not configured: set GOOGLE_SPREADSHEET_ID and a service account")
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()

			svc, err := export.NewSheetsService(ctx, export.SheetsConfig{
				SpreadsheetID:      cfg.GoogleSpreadsheetID,
				SheetPrefix:        cfg.GoogleSheetPrefix,
				ServiceAccountFile: cfg.GoogleServiceAccountFile,
				ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			})
			if err != nil {
				return err
			}
			exporter := export.NewSheetsExporter(svc, cfg.GoogleSpreadsheetID, cfg.GoogleSheetPrefix, a.logger)
			return a.withStore(ctx, func(st *store.Store) error {
				if err := exporter.Export(ctx, st.Identity(), st.Snapshot()); err != nil {
					return err
				}
				fmt.Fprintln(a.out, successStyle.Render("Exported to tab "+exporter.TabName(st.Identity())))
				return nil
			})
		},
	})
	return cmd
}

func tokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue bearer tokens for the API",
	}

	var identity core.Identity
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a token for a user with JWT_SECRET",
		Example: "  budgetctl token issue --uid alice --email alice@example.com\n" +
			"  export BUDGEASE_TOKEN=$(budgetctl token issue --uid alice)",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			token, err := auth.NewJWTProvider(cfg.JWTSecret, cfg.TokenTTL, a.logger).IssueToken(identity)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, token)
			return nil
		},
	}
	issue.Flags().StringVar(&identity.UID, "uid", "", "user id the token is issued for (required)")
	issue.Flags().StringVar(&identity.Email, "email", "", "user email")
	issue.Flags().StringVar(&identity.Name, "name", "", "display name")
	_ = issue.MarkFlagRequired("uid")
	cmd.AddCommand(issue)
	return cmd
}

func findCategory(st *store.Store, id string) (core.Category, error) {
	c, _, ok := st.Snapshot().Category(id)
	if !ok {
		return core.Category{}, fmt.Errorf("%w: %q", core.ErrCategoryNotFound, id)
	}
	return c, nil
}

func parseAmount(s string) (float64, error) {
	v, err := core.ParseAmount(s)
	if err != nil {
		return 0, fmt.Errorf("%w %q: use a positive number like 12.50", err, s)
	}
	return v, nil
}

// withTimeout bounds calls to remote services.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Minute)
}
