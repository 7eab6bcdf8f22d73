package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgBlue)
)

// PrintWarning displays a warning message with consistent formatting
func PrintWarning(message string) {
	warnColor.Fprintf(os.Stderr, "\nWarning:\n%s\n", message)
}

// PrintError displays an error message with consistent formatting
func PrintError(message string) {
	errorColor.Fprintf(os.Stderr, "\nError: %s\n", message)
}

// PrintSuccess displays a success message with consistent formatting
func PrintSuccess(w io.Writer, message string) {
	successColor.Fprintf(w, "\n%s\n", message)
}

func PrintInfo(w io.Writer, message string) {
	infoColor.Fprintln(w, message)
}

// ParseDate accepts YYYY-MM-DD or "today". An empty string means no date.
func ParseDate(input string) (*time.Time, error) {
	input = strings.TrimSpace(input)
	switch input {
	case "":
		return nil, nil
	case "today":
		now := time.Now().UTC().Truncate(24 * time.Hour)
		return &now, nil
	}
	date, err := time.Parse(time.DateOnly, input)
	if err != nil {
		return nil, fmt.Errorf("invalid date format: %s. Please use YYYY-MM-DD", input)
	}
	return &date, nil
}

func formatDelta(d *float64) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("%+.3f", *d)
}
