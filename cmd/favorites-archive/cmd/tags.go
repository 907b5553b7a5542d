package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"go-favorites-archive/internal/helpers"
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Manage the hierarchical tag tree",
}

var tagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tags with their IDs",
	RunE: func(cmd *cobra.Command, args []string) error {
		arch, err := openArchive()
		if err != nil {
			return err
		}
		defer closeArchive(arch)
		tags := arch.TagStats()
		ids := make([]int64, 0, len(tags))
		for id := range tags {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return tags[ids[i]].Name < tags[ids[j]].Name })
		for _, id := range ids {
			ts := tags[id]
			fmt.Printf("%6d  %-40s %4d image(s), %s\n", id, ts.Name, ts.Count, helpers.BytesToSize(ts.Size))
		}
		return nil
	},
}

var tagsParentFlag int64

var tagsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a tag, optionally under --parent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		arch, err := openArchive()
		if err != nil {
			return err
		}
		defer closeArchive(arch)
		id, err := arch.AddTag(tagsParentFlag, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("created tag %d\n", id)
		return nil
	},
}

var tagsRenameCmd = &cobra.Command{
	Use:   "rename <tag-id> <new-name>",
	Short: "Rename a tag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid tag ID %q: %w", args[0], err)
		}
		arch, err := openArchive()
		if err != nil {
			return err
		}
		defer closeArchive(arch)
		return arch.RenameTag(id, args[1])
	},
}

var tagsDeleteCmd = &cobra.Command{
	Use:   "delete <tag-id>",
	Short: "Delete a leaf tag and strip it from all images",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid tag ID %q: %w", args[0], err)
		}
		arch, err := openArchive()
		if err != nil {
			return err
		}
		defer closeArchive(arch)
		return arch.DeleteTag(id)
	},
}

var tagsAssignCmd = &cobra.Command{
	Use:   "assign <digest> <tag-id>",
	Short: "Attach a tag to an archived image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid tag ID %q: %w", args[1], err)
		}
		arch, err := openArchive()
		if err != nil {
			return err
		}
		defer closeArchive(arch)
		return arch.TagBlob(args[0], id)
	},
}

var tagsUnassignCmd = &cobra.Command{
	Use:   "unassign <digest> <tag-id>",
	Short: "Detach a tag from an archived image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid tag ID %q: %w", args[1], err)
		}
		arch, err := openArchive()
		if err != nil {
			return err
		}
		defer closeArchive(arch)
		return arch.UntagBlob(args[0], id)
	},
}

func init() {
	tagsAddCmd.Flags().Int64Var(&tagsParentFlag, "parent", 0, "Parent tag ID (0 for top level)")
	tagsCmd.AddCommand(tagsListCmd, tagsAddCmd, tagsRenameCmd, tagsDeleteCmd, tagsAssignCmd, tagsUnassignCmd)
	rootCmd.AddCommand(tagsCmd)
}
