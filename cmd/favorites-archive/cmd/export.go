package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <user-id> <directory>",
	Short: "Write a user's archived images out as plain files",
	Long: `Export copies every archived image of a user into a directory tree
named after the user and folders, decrypting if the archive has a
password. The archive itself is not modified.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user ID %q: %w", args[0], err)
		}
		arch, err := openArchive()
		if err != nil {
			return err
		}
		defer closeArchive(arch)
		count, err := arch.ExportUser(userID, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("exported %d file(s)\n", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
