package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"report-desk/internal/config"
	"report-desk/internal/domain"
)

var (
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	statusColor  = color.New(color.FgCyan)
)

var statusLabels = map[domain.JobStatus]string{
	domain.JobStatusSubmitting:   "Submitting request...",
	domain.JobStatusInterpreting: "Reading server reply...",
	domain.JobStatusFetching:     "Downloading report...",
}

func printSuccess(w io.Writer, format string, args ...any) {
	successColor.Fprintf(w, format+"\n", args...)
}

func printWarning(w io.Writer, format string, args ...any) {
	warnColor.Fprintf(w, format+"\n", args...)
}

// printError shows the user-facing message of err.
func printError(w io.Writer, err error) {
	errorColor.Fprintf(w, "Error: %s\n", domain.UserMessage(err))
}

func printStatus(w io.Writer, status domain.JobStatus) {
	label, ok := statusLabels[status]
	if !ok {
		label = string(status)
	}
	statusColor.Fprintln(w, label)
}

func printDiagnostic(w io.Writer, item domain.DiagnosticItem) {
	c := successColor
	switch item.Status {
	case domain.DiagnosticStatusWarn:
		c = warnColor
	case domain.DiagnosticStatusFail:
		c = errorColor
	}
	c.Fprintf(w, "[%-4s] ", diagnosticLabel(item.Status))
	fmt.Fprintf(w, "%s: %s\n", item.Name, item.Message)
	if item.Hint != "" {
		fmt.Fprintf(w, "       %s\n", item.Hint)
	}
	if item.Fixable {
		fmt.Fprintln(w, "       fixable from the desktop app")
	}
}

// requestContext bounds a single non-generation call.
func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	requestTimeout := config.DefaultRequestTimeout
	if services != nil && services.Settings.RequestTimeout > 0 {
		requestTimeout = services.Settings.RequestTimeout
	}
	return context.WithTimeout(commandContext(cmd), requestTimeout)
}
