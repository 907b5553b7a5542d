package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var auditForceFlag bool

var auditCmd = &cobra.Command{
	Use:   "audit <user-id>",
	Short: "Re-check that archived images still resolve remotely",
	Long: `Audit walks every archived image of a user and verifies it still
resolves on the remote site. Failures are recorded as soft "gone"
markers with the depth reached; nothing is ever deleted by an audit,
and a later success clears the marker.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().BoolVar(&auditForceFlag, "force", false, "Audit even recently confirmed images")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user ID %q: %w", args[0], err)
	}
	arch, err := openArchive()
	if err != nil {
		return err
	}
	defer func() {
		if err := arch.Close(); err != nil {
			log.WithError(err).Error("Error closing archive")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	writer := uilive.New()
	writer.Start()
	defer writer.Stop()
	arch.OnProgress(func(stage string, done, total int) {
		fmt.Fprintf(writer, "%s: %d/%d\n", stage, done, total)
	})

	return arch.AuditUser(ctx, userID, auditForceFlag)
}
