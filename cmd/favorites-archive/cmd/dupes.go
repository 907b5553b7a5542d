package cmd

import (
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-favorites-archive/internal/models"
)

var dupesCmd = &cobra.Command{
	Use:   "dupes",
	Short: "Visual duplicate detection and verdict review",
}

var dupesRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Re-run duplicate detection over all archived images",
	RunE: func(cmd *cobra.Command, args []string) error {
		arch, err := openArchive()
		if err != nil {
			return err
		}
		defer closeArchive(arch)
		stats, err := arch.RunDetection()
		if err != nil {
			return err
		}
		fmt.Printf("Compared %d pair(s), %d edge(s), %d group(s) (%d unchanged)\n",
			stats.Compared, stats.Edges, stats.Groups, stats.Carried)
		return nil
	},
}

var dupesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List duplicate groups and member verdicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		arch, err := openArchive()
		if err != nil {
			return err
		}
		defer closeArchive(arch)

		groups := arch.DuplicateGroups()
		keys := make([]string, 0, len(groups))
		for key := range groups {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			group := groups[key]
			fmt.Printf("group %s\n", key)
			for _, digest := range group.Digests() {
				fmt.Printf("  %s  %s\n", digest, group.Verdicts[digest])
			}
		}
		fmt.Printf("%d group(s)\n", len(groups))
		return nil
	},
}

var dupesVerdictCmd = &cobra.Command{
	Use:   "verdict <group-key> <digest> <new|false|keep|skip>",
	Short: "Record a decision on a duplicate group member",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		arch, err := openArchive()
		if err != nil {
			return err
		}
		defer closeArchive(arch)
		return arch.SetVerdict(args[0], args[1], models.Verdict(args[2]))
	},
}

func init() {
	dupesCmd.AddCommand(dupesRunCmd, dupesListCmd, dupesVerdictCmd)
	rootCmd.AddCommand(dupesCmd)
}

// closeArchive closes with error logging, for the read-mostly commands.
func closeArchive(arch interface{ Close() error }) {
	if err := arch.Close(); err != nil {
		log.WithError(err).Error("Error closing archive")
	}
}
