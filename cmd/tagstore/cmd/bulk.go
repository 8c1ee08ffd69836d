package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBulkCmd() *cobra.Command {
	var enrichItems bool
	var dir string

	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Ingest every image in the local folder",
		Long: `Bulk walks the configured images folder, uploads each supported
image, optionally enriches it with AI-generated metadata, and saves the
resulting posts. Successfully ingested files are removed; a provider
rate limit stops the run and leaves the rest for the next one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if dir != "" {
				a.orch.Dir = dir
			}

			report, err := a.orch.Run(cmd.Context(), enrichItems)
			if err != nil {
				return err
			}

			fmt.Printf("Ingested: %d  Failed: %d  Skipped: %d\n",
				report.Success, report.Failed, report.Skipped)
			if !report.Completed() {
				fmt.Printf("Stopped early: %s\n", report.StopReason)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&enrichItems, "enrich", false, "Generate titles, tags and alt text for each image")
	cmd.Flags().StringVar(&dir, "dir", "", "Override the configured ingest folder")
	return cmd
}
