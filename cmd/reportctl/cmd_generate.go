package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"report-desk/internal/bootstrap"
	"report-desk/internal/domain"
)

var (
	generateFormat string
	contentTitle   string
	contentFile    string
	contentText    string
)

// generateCmd is the parent for both generation modes
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a report and save it locally",
	Long: `Ask the server to write a report and download the result.

Available subcommands:
  topic   - Generate from a short topic
  content - Generate from your own text`,
}

// generateTopicCmd generates from a topic
var generateTopicCmd = &cobra.Command{
	Use:   "topic [topic...]",
	Short: "Generate a report from a topic",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate(cmd, domain.GenerationRequest{
			Mode:         domain.ModeFromTopic,
			SubjectText:  strings.Join(args, " "),
			OutputFormat: bootstrap.ParseFormat(generateFormat),
		})
	},
}

// generateContentCmd generates from supplied text
var generateContentCmd = &cobra.Command{
	Use:   "content",
	Short: "Generate a report from your own text",
	Long: `Generate a report from text given with --text, read from --file, or
piped on standard input when neither is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := readContent(cmd)
		if err != nil {
			return err
		}
		return runGenerate(cmd, domain.GenerationRequest{
			Mode:         domain.ModeFromContent,
			Title:        strings.TrimSpace(contentTitle),
			SubjectText:  content,
			OutputFormat: bootstrap.ParseFormat(generateFormat),
		})
	},
}

func init() {
	generateCmd.PersistentFlags().StringVarP(&generateFormat, "format", "f", string(domain.FormatPDF), "Output format (docx or pdf)")
	generateContentCmd.Flags().StringVarP(&contentTitle, "title", "t", "", "Report title (required)")
	generateContentCmd.Flags().StringVar(&contentFile, "file", "", "Read content from file")
	generateContentCmd.Flags().StringVar(&contentText, "text", "", "Content text")

	generateCmd.AddCommand(generateTopicCmd)
	generateCmd.AddCommand(generateContentCmd)
}

// runGenerate submits one request and reports each stage as it happens.
// Ctrl-C cancels the run.
func runGenerate(cmd *cobra.Command, req domain.GenerationRequest) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	job, err := services.Pipeline.Submit(ctx, req, func(job domain.Job) {
		if !job.Status.IsTerminal() {
			printStatus(out, job.Status)
		}
	})
	if err != nil {
		return err
	}

	switch job.Status {
	case domain.JobStatusSaved:
		printSuccess(out, "%s", job.Message)
	case domain.JobStatusInformational:
		printWarning(out, "Server replied without a file: %s", job.Message)
	}
	return nil
}

func readContent(cmd *cobra.Command) (string, error) {
	switch {
	case contentText != "" && contentFile != "":
		return "", fmt.Errorf("use either --text or --file, not both")
	case contentText != "":
		return contentText, nil
	case contentFile != "":
		data, err := os.ReadFile(contentFile)
		if err != nil {
			return "", fmt.Errorf("read content file: %w", err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read content from stdin: %w", err)
		}
		return string(data), nil
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
