package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-favorites-archive/internal/helpers"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print archive-wide counters and size summaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		arch, err := openArchive()
		if err != nil {
			return err
		}
		defer closeArchive(arch)

		st := arch.Stats()
		fmt.Printf("Users:            %d\n", st.Users)
		fmt.Printf("Folders:          %d\n", st.Folders)
		fmt.Printf("Image locations:  %d\n", st.Locations)
		fmt.Printf("Unique images:    %d (%d animated)\n", st.Blobs, st.Animated)
		fmt.Printf("Pending retries:  %d\n", st.Failed)
		fmt.Printf("Marked gone:      %d\n", st.Gone)
		fmt.Printf("Duplicate groups: %d (%d member(s))\n", st.DuplicateGroups, st.DuplicateMembers)
		fmt.Printf("Content:          %s total, mean %s\n",
			helpers.BytesToSize(st.Content.Total), helpers.BytesToSize(uint64(st.Content.Mean)))
		fmt.Printf("Thumbnails:       %s total\n", helpers.BytesToSize(st.Thumbs.Total))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
