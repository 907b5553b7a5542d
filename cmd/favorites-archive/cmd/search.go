package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchLimitFlag int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search archived images by name, user, folder, or tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		arch, err := openArchive()
		if err != nil {
			return err
		}
		defer closeArchive(arch)
		digests, err := arch.Search(args[0], searchLimitFlag)
		if err != nil {
			return err
		}
		for _, digest := range digests {
			fmt.Println(digest)
		}
		fmt.Printf("%d match(es)\n", len(digests))
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search index from the archive state",
	RunE: func(cmd *cobra.Command, args []string) error {
		arch, err := openArchive()
		if err != nil {
			return err
		}
		defer closeArchive(arch)
		return arch.RebuildIndex()
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimitFlag, "limit", 50, "Maximum results to print")
	rootCmd.AddCommand(searchCmd, reindexCmd)
}
