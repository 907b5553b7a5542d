package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage archived users and their folders",
}

var usersAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Resolve a user name remotely and register it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		arch, err := openArchive()
		if err != nil {
			return err
		}
		defer closeArchive(arch)
		id, err := arch.AddUser(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("registered user %s as %d\n", args[0], id)
		return nil
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived users with per-folder summaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		arch, err := openArchive()
		if err != nil {
			return err
		}
		defer closeArchive(arch)
		state := arch.State()
		userIDs := make([]int64, 0, len(state.Users))
		for id := range state.Users {
			userIDs = append(userIDs, id)
		}
		sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })
		for _, userID := range userIDs {
			fmt.Printf("%d  %s\n", userID, state.Users[userID].Name)
			folders := arch.UserStats(userID)
			folderIDs := make([]int64, 0, len(folders))
			for id := range folders {
				folderIDs = append(folderIDs, id)
			}
			sort.Slice(folderIDs, func(i, j int) bool { return folderIDs[i] < folderIDs[j] })
			for _, folderID := range folderIDs {
				fs := folders[folderID]
				status := "stale"
				if fs.Fresh {
					status = "fresh"
				}
				fmt.Printf("    %d  %-30s %4d image(s), %d failed, %s\n",
					folderID, fs.Name, fs.Images, fs.Failed, status)
			}
		}
		return nil
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a user, their folders, and any orphaned content",
	Args:  cobra.ExactArgs(1),
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
		return arch.DeleteUser(userID)
	},
}

var usersDeleteFolderCmd = &cobra.Command{
	Use:   "delete-folder <user-id> <folder-id>",
	Short: "Delete one folder and any orphaned content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user ID %q: %w", args[0], err)
		}
		folderID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid folder ID %q: %w", args[1], err)
		}
		arch, err := openArchive()
		if err != nil {
			return err
		}
		defer closeArchive(arch)
		return arch.DeleteAlbum(userID, folderID)
	},
}

func init() {
	usersCmd.AddCommand(usersAddCmd, usersListCmd, usersDeleteCmd, usersDeleteFolderCmd)
	rootCmd.AddCommand(usersCmd)
}
