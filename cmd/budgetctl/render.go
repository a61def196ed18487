package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Ayushsunny/Budgease/internal/core"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	headerStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	positiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4"))
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFE66D"))
)

const (
	nameWidth   = 20
	amountWidth = 12
)

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// signed colours an already padded amount by the sign of v.
func signed(v float64, padded string) string {
	switch {
	case v < 0:
		return negativeStyle.Render(padded)
	case v > 0:
		return positiveStyle.Render(padded)
	default:
		return padded
	}
}

func identityLabel(id core.Identity) string {
	switch {
	case id.IsAnonymous():
		return "local budget"
	case id.Email != "":
		return id.Email
	default:
		return id.UID
	}
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

// renderSummary prints the budget table. Columns are padded before styling
// so escape codes never break alignment.
func renderSummary(w io.Writer, id core.Identity, revision uint64, s core.Summary) {
	fmt.Fprintln(w, titleStyle.Render("Budget: "+identityLabel(id))+subtleStyle.Render(fmt.Sprintf("  (revision %d)", revision)))
	fmt.Fprintln(w)

	idWidth := 2
	for _, c := range s.Categories {
		idWidth = max(idWidth, len(c.ID))
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-*s %-*s %*s %*s %*s %8s",
		idWidth, "ID", nameWidth, "Category", amountWidth, "Allocation", amountWidth, "Spent", amountWidth, "Remaining", "Expenses")))
	fmt.Fprintln(w, subtleStyle.Render(strings.Repeat("-", idWidth+1+nameWidth+3*(amountWidth+1)+9)))

	if len(s.Categories) == 0 {
		fmt.Fprintln(w, subtleStyle.Render("No categories. Use 'budgetctl category add <name>' to create one."))
	}
	for _, c := range s.Categories {
		fmt.Fprintf(w, "%-*s %-*s %*s %*s %s %8d\n",
			idWidth, c.ID,
			nameWidth, truncate(c.Name, nameWidth),
			amountWidth, money(c.Allocation),
			amountWidth, money(c.Spent),
			signed(c.Remaining, fmt.Sprintf("%*s", amountWidth, money(c.Remaining))),
			c.Expenses)
	}
	fmt.Fprintln(w)

	line := func(label string, v float64, colour bool) {
		amount := fmt.Sprintf("%*s", amountWidth, money(v))
		if colour {
			amount = signed(v, amount)
		}
		fmt.Fprintf(w, "%-*s %s\n", nameWidth, label, amount)
	}
	line("Salary", s.Salary, false)
	line("Total allocated", s.TotalAllocated, false)
	line("Total spent", s.TotalSpent, false)
	line("Remaining", s.Remaining, true)
	line("Unallocated", s.Unallocated, true)
}

// renderExpenses lists the expenses of one category, oldest first.
func renderExpenses(w io.Writer, c core.Category) {
	fmt.Fprintln(w, titleStyle.Render(c.Name))
	if len(c.Expenses) == 0 {
		fmt.Fprintln(w, subtleStyle.Render("No expenses."))
		return
	}
	for _, e := range c.Expenses {
		fmt.Fprintf(w, "%-24s %*s  %s\n", e.Date, amountWidth, money(e.Amount), e.Note)
	}
}
