package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var mode string
	var limit int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the catalog",
		Long: `Search runs a ranked full-text query over the catalog. Modes:
  llm   search AI tags and titles (default)
  alt   search alt text only
  all   search every text field

An empty query or "*" lists every post.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newCatalog()
			if err != nil {
				return err
			}
			defer a.close()

			query := strings.Join(args, " ")
			hits, err := a.svc.Search(cmd.Context(), query, mode, limit)
			if err != nil {
				return err
			}

			if len(hits) == 0 {
				fmt.Println("No results.")
				return nil
			}
			for i, h := range hits {
				fmt.Printf("%2d. %-40s %.3f\n", i+1, h.Title, h.Score)
				if h.Tags != "" {
					fmt.Printf("    tags: %s\n", h.Tags)
				}
				fmt.Printf("    %s\n", h.ImageURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "llm", "Search mode: llm, alt, or all")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")
	return cmd
}
