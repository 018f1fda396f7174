package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/evalscribe/evalscribe/internal/config"
	"github.com/evalscribe/evalscribe/internal/logging"
	"github.com/evalscribe/evalscribe/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "evalscribe",
	Short: "Generate structured competency evaluations from assessment transcripts",
	Long: `Evalscribe converts a free-text competency-assessment transcript into a
structured evaluation document. Each question in the chosen curriculum is
evaluated by an independent model call; results stream back as they
complete and are merged into one document at the end.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		cwd, _ := cmd.Flags().GetString("cwd")
		if cwd != "" {
			if err := os.Chdir(cwd); err != nil {
				return fmt.Errorf("failed to change directory: %v", err)
			}
		}
		if cwd == "" {
			c, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current working directory: %v", err)
			}
			cwd = c
		}

		if _, err := config.Load(cwd, debug); err != nil {
			return err
		}

		textHandler := slog.NewTextHandler(logging.NewSlogWriter(), &slog.HandlerOptions{
			Level: logLevel(debug),
		})
		slog.SetDefault(slog.New(textHandler))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flag("version").Changed {
			fmt.Println(version.Version)
			return nil
		}
		return cmd.Help()
	},
}

func logLevel(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Version")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
}
