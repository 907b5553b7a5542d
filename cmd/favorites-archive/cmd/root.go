package cmd

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-favorites-archive/internal/archive"
	"go-favorites-archive/internal/config"
	"go-favorites-archive/internal/gallery"
	"go-favorites-archive/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// passwordFlag holds the archive password (empty means plaintext)
var passwordFlag string

// siteFlag holds the gallery API base URL, overriding the config
var siteFlag string

// verboseFlag enables debug logging
var verboseFlag bool

// globalConfig holds the loaded configuration
var globalConfig models.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "favorites-archive",
	Short: "A local archive engine for remote image favorites",
	Long: `Favorites Archive crawls users' favorite image folders from a
remote gallery, stores each unique image exactly once in a
content-addressable blob store, and layers duplicate detection,
auditing, tagging, and search on top.`,
	PersistentPreRunE: loadGlobalConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.toml", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&passwordFlag, "password", "", "Archive password (omit for a plaintext archive)")
	rootCmd.PersistentFlags().StringVar(&siteFlag, "site", "", "Gallery API base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")

	viper.SetEnvPrefix("FAVARCH")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("password", rootCmd.PersistentFlags().Lookup("password"))
	_ = viper.BindPFlag("site", rootCmd.PersistentFlags().Lookup("site"))
}

// loadGlobalConfig loads the configuration and applies flag/env overrides.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	if verboseFlag {
		log.SetLevel(log.DebugLevel)
	}

	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		// Not fatal here: commands that only read local state can still
		// run on defaults. Commands needing the network check SiteURL.
		log.WithError(err).Warnf("Failed to load configuration from %s", cfgFile)
		config.ApplyDefaults(&globalConfig)
	}

	if site := viper.GetString("site"); site != "" {
		globalConfig.SiteURL = site
		log.Debugf("Overriding SiteURL from flag/env: %s", site)
	}
	if pw := viper.GetString("password"); pw != "" {
		passwordFlag = pw
	}
	if globalConfig.ArchivePath == "" {
		globalConfig.ArchivePath = "archive"
	}
	return nil
}

// openArchive builds the gallery source and opens the archive handle.
// Every subcommand goes through here.
func openArchive() (*archive.Archive, error) {
	source := gallery.NewHTTPSource(globalConfig.SiteURL,
		time.Duration(globalConfig.FetchTimeoutSec)*time.Second)
	arch, err := archive.Open(globalConfig, passwordFlag, source)
	if err != nil {
		return nil, fmt.Errorf("opening archive at %s: %w", globalConfig.ArchivePath, err)
	}
	return arch, nil
}
