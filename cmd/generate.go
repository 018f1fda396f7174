package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"log/slog"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/evalscribe/evalscribe/internal/app"
	"github.com/evalscribe/evalscribe/internal/curriculum"
	"github.com/evalscribe/evalscribe/internal/db"
	"github.com/evalscribe/evalscribe/internal/format"
	"github.com/evalscribe/evalscribe/internal/generation"
	"github.com/evalscribe/evalscribe/internal/logging"
	"github.com/evalscribe/evalscribe/internal/report"
)

// syncWriter is a thread-safe writer that prevents interleaved output.
type syncWriter struct {
	w  io.Writer
	mu sync.Mutex
}

func (sw *syncWriter) Write(p []byte) (n int, err error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.w.Write(p)
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one generation from a transcript file",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logging.RecoverPanic("generate", nil)

		studentName, _ := cmd.Flags().GetString("student")
		gender, _ := cmd.Flags().GetString("gender")
		curriculumName, _ := cmd.Flags().GetString("curriculum")
		transcriptPath, _ := cmd.Flags().GetString("transcript")
		templatePath, _ := cmd.Flags().GetString("template")
		outputPath, _ := cmd.Flags().GetString("output")
		outputFormatStr, _ := cmd.Flags().GetString("output-format")
		verbose, _ := cmd.Flags().GetBool("verbose")

		outputFormat := format.OutputFormat(outputFormatStr)
		if !outputFormat.IsValid() {
			return fmt.Errorf("invalid output format: %s", outputFormatStr)
		}

		if verbose {
			charmLogger := charmlog.NewWithOptions(&syncWriter{w: os.Stderr}, charmlog.Options{
				Level:           charmlog.DebugLevel,
				ReportTimestamp: true,
				TimeFormat:      time.RFC3339,
				Prefix:          "evalscribe",
			})
			charmlog.SetDefault(charmLogger)
			slog.SetDefault(slog.New(charmLogger))
		}

		transcript, err := os.ReadFile(transcriptPath)
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}

		conn, err := db.Connect()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		application, err := app.New(ctx, conn)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		schema, ok := application.Curricula.Get(curriculumName)
		if !ok {
			return fmt.Errorf("unknown curriculum %q (available: %v)", curriculumName, application.Curricula.Names())
		}

		req := generation.Request{
			StudentName: studentName,
			Gender:      gender,
			Transcript:  string(transcript),
			Curriculum:  curriculumName,
			Schema:      schema,
		}
		genID, events, err := application.Orchestrator.Start(ctx, req)
		if err != nil {
			return err
		}

		// A signal cancels the run; the event channel then closes on its own.
		go func() {
			<-ctx.Done()
			application.Orchestrator.Cancel(genID)
		}()

		results, err := consumeEvents(events)
		if err != nil {
			return err
		}
		if results == nil {
			return fmt.Errorf("generation did not complete")
		}

		return writeOutput(schema, results, studentName, templatePath, outputPath, outputFormat)
	},
}

// consumeEvents drains the stream, logging progress, and returns the
// final result map from the done event. A nil map with nil error means
// the run was canceled or failed before finishing.
func consumeEvents(events <-chan generation.ProgressEvent) (generation.ResultMap, error) {
	var results generation.ResultMap
	for event := range events {
		switch event.Type {
		case generation.EventProcessing:
			slog.Info("Processing", "unit", event.UnitCode, "question", event.QuestionKey)
		case generation.EventRetry:
			slog.Warn("Retrying", "unit", event.UnitCode, "question", event.QuestionKey, "attempt", event.Attempt)
		case generation.EventTokenUsage:
			slog.Debug("Token usage", "section", event.Section, "input", event.InputTokens, "output", event.OutputTokens)
		case generation.EventCompleted:
			slog.Info("Completed", "unit", event.UnitCode, "question", event.QuestionKey)
		case generation.EventError:
			if event.Fatal {
				return nil, fmt.Errorf("generation failed: %s", event.Message)
			}
			slog.Warn("Question failed", "unit", event.UnitCode, "question", event.QuestionKey, "error", event.Message)
		case generation.EventDone:
			results = event.Results
		}
	}
	return results, nil
}

func writeOutput(schema curriculum.Schema, results generation.ResultMap, studentName, templatePath, outputPath string, outputFormat format.OutputFormat) error {
	flat := report.Flatten(schema, results, studentName)

	var out []byte
	if templatePath != "" {
		filler, err := report.NewTemplateFiller(templatePath)
		if err != nil {
			return err
		}
		out, err = filler.Fill(flat)
		if err != nil {
			return err
		}
	} else {
		var err error
		out, err = json.MarshalIndent(flat, "", "  ")
		if err != nil {
			return err
		}
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, out, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		slog.Info("Report written", "path", outputPath)
		return nil
	}

	formatted, err := format.FormatOutput(string(out), outputFormat)
	if err != nil {
		return err
	}
	fmt.Println(formatted)
	return nil
}

func init() {
	generateCmd.Flags().StringP("student", "s", "", "Student name")
	generateCmd.Flags().StringP("gender", "g", "", "Student gender, used for pronoun phrasing")
	generateCmd.Flags().StringP("curriculum", "u", "", "Curriculum name")
	generateCmd.Flags().StringP("transcript", "t", "", "Path to the transcript file")
	generateCmd.Flags().String("template", "", "Path to an output document template")
	generateCmd.Flags().StringP("output", "o", "", "Write the report to this file instead of stdout")
	generateCmd.Flags().StringP("output-format", "f", "text", "Output format for stdout (text, json)")
	generateCmd.Flags().Bool("verbose", false, "Display logs on stderr")

	generateCmd.MarkFlagRequired("student")
	generateCmd.MarkFlagRequired("curriculum")
	generateCmd.MarkFlagRequired("transcript")

	rootCmd.AddCommand(generateCmd)
}
