package llm

import (
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/ledger-assistant/internal/commands"
	"github.com/dvloznov/ledger-assistant/internal/domain"
)

// DefaultCategories are offered to the model in addition to the categories
// already present in the ledger.
var DefaultCategories = []string{
	"Food",
	"Groceries",
	"Rent",
	"Utilities",
	"Transport",
	"Entertainment",
	"Health",
	"Shopping",
	"Salary",
	"Other",
}

// buildSystemInstruction lists the callable commands and the vocabularies the
// model must pick from.
func buildSystemInstruction(specs []commands.Spec, categories []string, today time.Time) string {
	var b strings.Builder
	b.WriteString("You are a bookkeeping assistant for a personal ledger of expenses and payments.\n")
	b.WriteString("Today is " + today.Format(domain.DateLayout) + " (" + today.Weekday().String() + ").\n\n")

	b.WriteString("Available commands:\n")
	for _, s := range specs {
		b.WriteString("  - " + s.Name + ": " + s.Description + "\n")
	}
	b.WriteString("\n")

	b.WriteString("Transaction types:\n")
	for _, t := range domain.Types {
		b.WriteString("  - " + string(t) + "\n")
	}
	b.WriteString("\n")

	b.WriteString("Categories:\n")
	for _, c := range mergeCategories(categories, DefaultCategories) {
		b.WriteString("  - " + c + "\n")
	}
	b.WriteString("\n")

	b.WriteString("RULES:\n")
	b.WriteString("1. Call exactly one command when the request asks to record, change, delete, list, sum, average or export transactions.\n")
	b.WriteString("2. Money spent is type \"expense\"; money received is type \"pay\". Always pass a positive amount.\n")
	b.WriteString("3. Dates must be YYYY-MM-DD. Resolve relative dates such as \"yesterday\" against today's date.\n")
	b.WriteString("4. Prefer an existing category; use \"Other\" when nothing fits.\n")
	b.WriteString("5. Use ai_analyze for open questions about habits, trends or advice.\n")
	b.WriteString("6. If the request is not about the ledger, answer briefly in plain text without calling a command.\n")

	return b.String()
}

func buildAnalysisPrompt(question, csv string) string {
	var b strings.Builder
	b.WriteString("You are a personal finance analyst.\n")
	b.WriteString("Answer the question using ONLY the transactions below.\n")
	b.WriteString("Amounts are signed: expenses are negative, payments positive.\n\n")
	b.WriteString("Question: " + question + "\n\n")
	b.WriteString("Transactions (CSV):\n")
	b.WriteString(csv)
	if !strings.HasSuffix(csv, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\nReply in plain text. Do NOT use Markdown tables.\n")
	return b.String()
}

// mergeCategories returns the ledger's categories followed by any default not
// already present, compared case-insensitively.
func mergeCategories(seen, defaults []string) []string {
	out := make([]string, 0, len(seen)+len(defaults))
	have := make(map[string]bool)
	add := func(c string) {
		key := strings.ToLower(strings.TrimSpace(c))
		if key == "" || have[key] {
			return
		}
		have[key] = true
		out = append(out, strings.TrimSpace(c))
	}

	sorted := append([]string(nil), seen...)
	sort.Strings(sorted)
	for _, c := range sorted {
		add(c)
	}
	for _, c := range defaults {
		add(c)
	}
	return out
}
