package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"report-desk/internal/bootstrap"
	"report-desk/internal/domain"
)

// statsCmd prints server-wide counters
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show report and user totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		stats, err := services.API.Stats(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "reports generated: %d\n", stats.TotalReports)
		fmt.Fprintf(out, "registered users:  %d\n", stats.TotalUsers)
		return nil
	},
}

// doctorCmd runs the startup diagnostics
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check server, download folder and session store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		report := services.Diagnose(ctx)
		out := cmd.OutOrStdout()
		for _, item := range report.Items {
			printDiagnostic(out, item)
		}
		if report.HasFailures {
			return fmt.Errorf("one or more checks failed")
		}
		return nil
	},
}

// formatsCmd lists output formats
var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List output formats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, format := range bootstrap.OutputFormats() {
			fmt.Fprintf(out, "%-5s %s (%s)\n", format.ID, format.Name, format.Extension)
		}
		return nil
	},
}

func diagnosticLabel(status domain.DiagnosticStatus) string {
	switch status {
	case domain.DiagnosticStatusPass:
		return "ok"
	case domain.DiagnosticStatusWarn:
		return "warn"
	default:
		return "FAIL"
	}
}
