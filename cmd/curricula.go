package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/evalscribe/evalscribe/internal/config"
	"github.com/evalscribe/evalscribe/internal/curriculum"
)

var curriculaCmd = &cobra.Command{
	Use:   "curricula",
	Short: "List the curricula available in the configured directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		dir := cfg.Curricula.Directory
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cfg.WorkingDir, dir)
		}

		registry := curriculum.NewRegistry()
		if err := registry.LoadDir(dir); err != nil {
			return err
		}

		for _, name := range registry.Names() {
			schema, _ := registry.Get(name)
			questions := 0
			for _, unit := range schema {
				questions += len(unit.Questions)
			}
			fmt.Printf("%s\t%d units\t%d questions\n", name, len(schema), questions)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(curriculaCmd)
}
