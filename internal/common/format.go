package common

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// ReportWidth is the width of CLI report banners
const ReportWidth = 80

// Out receives CLI report output
var Out io.Writer = os.Stdout

func rule(char string) string {
	return strings.Repeat(char, ReportWidth)
}

// PrintHeader prints a banner: blank line, rule, title, rule
func PrintHeader(title string) {
	fmt.Fprintf(Out, "\n%s\n%s\n%s\n", rule("="), title, rule("="))
}

func PrintSeparator() {
	fmt.Fprintln(Out, rule("="))
}

// PrintFooter closes a report with a summary line
func PrintFooter(summary string) {
	fmt.Fprintf(Out, "\n%s\n%s\n%s\n\n", rule("="), summary, rule("="))
}

// PrintBoxSeparator prints the rule under an account box header
func PrintBoxSeparator() {
	fmt.Fprintln(Out, "├"+strings.Repeat("─", ReportWidth-2))
}

// BoxPrefix returns the tree prefix of a list item
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// BoxDetailPrefix returns the prefix for detail lines under a list item
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// ShortId truncates long identifiers for tabular output
func ShortId(id string) string {
	switch {
	case id == "":
		return "none"
	case len(id) > 8:
		return id[:8] + "..."
	}
	return id
}
