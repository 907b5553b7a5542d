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

var (
	ingestForceFlag  bool
	ingestFolderFlag int64
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <user-id|user-name>",
	Short: "Crawl a user's favorite folders into the archive",
	Long: `Ingest lists a user's favorite folders and downloads every image
not yet archived. Interrupting is safe: progress is checkpointed and
the next run resumes from the page cursor and the failed-image set.
Fresh folders (finished recently with no failures) are skipped unless
--force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestForceFlag, "force", false, "Crawl even if the folder is fresh")
	ingestCmd.Flags().Int64Var(&ingestFolderFlag, "folder", 0, "Only crawl this folder ID")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
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

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		// not numeric, treat as a user name and resolve it remotely
		if userID, err = arch.AddUser(ctx, args[0]); err != nil {
			return err
		}
	}

	writer := uilive.New()
	writer.Start()
	defer writer.Stop()
	arch.OnProgress(func(stage string, done, total int) {
		fmt.Fprintf(writer, "%s: %d/%d\n", stage, done, total)
	})

	if ingestFolderFlag != 0 {
		return arch.IngestFolder(ctx, userID, ingestFolderFlag, ingestForceFlag)
	}
	return arch.IngestUser(ctx, userID, ingestForceFlag)
}
