package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/olbboy/streviz-engine/internal/merge"
	"github.com/olbboy/streviz-engine/internal/models"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Inspect merge-compatibility decisions for a set of source files",
}

var mergeCheckCmd = &cobra.Command{
	Use:   "check <files.json>",
	Short: "Report the merge strategy and any compatibility issues for a file list",
	Long: `check reads a JSON array of media file descriptors (the same shape as
internal/models.MediaFile) and prints the strategy the compatibility
checker would choose, plus the specific fields that diverge when the
files aren't concat-copy compatible.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file list: %w", err)
		}

		var files []models.MediaFile
		if err := json.Unmarshal(raw, &files); err != nil {
			return fmt.Errorf("parsing file list: %w", err)
		}

		strategy := merge.CheckCompatibility(files)
		fmt.Printf("strategy: %s\n", strategy)
		fmt.Printf("total_duration_secs: %.1f\n", merge.TotalDuration(files))

		if issues := merge.CompatibilityIssues(files); len(issues) > 0 {
			fmt.Println("issues:")
			for _, issue := range issues {
				fmt.Printf("  - %s\n", issue)
			}
		}

		return nil
	},
}

func init() {
	mergeCmd.AddCommand(mergeCheckCmd)
	rootCmd.AddCommand(mergeCmd)
}
