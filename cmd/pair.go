package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjrosen/fsync/internal/config"
)

var (
	pairSubdirs      bool
	pairAutoConnect  bool
	pairAutoRealtime bool
	pairFile         bool
	pairBackupDir    string
)

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Manage folder pairs",
}

var pairAddCmd = &cobra.Command{
	Use:   "add <name> <local> <remote>",
	Short: "Add a folder pair to the config file",
	Long: `Add a folder pair to the config file. Other settings and comments in
the file are kept.

Examples:
  fsync pair add site ~/site /var/www --subdirs --auto-realtime
  fsync pair add hosts /etc/hosts /etc/hosts --file`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		local, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("resolving local path: %w", err)
		}
		pair := newFolderPair(args[0], local, args[2])

		path := configPath()
		if err := config.AddFolderPair(path, cfg.FolderPairs, pair); err != nil {
			return err
		}
		cfg.FolderPairs = append(cfg.FolderPairs, pair)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added folder pair %s to %s\n", pair.Name, path)
		return nil
	},
}

var pairListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured folder pairs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, p := range cfg.FolderPairs {
			local, remote := p.Local, p.Remote
			if p.SingleFile() {
				local, remote = p.LocalFile, p.RemoteFile
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s <-> %s\n", p.Name, local, remote)
		}
		return nil
	},
}

func init() {
	pairAddCmd.Flags().BoolVar(&pairSubdirs, "subdirs", false, "include subdirectories")
	pairAddCmd.Flags().BoolVar(&pairAutoConnect, "auto-connect", false, "connect when fsync starts")
	pairAddCmd.Flags().BoolVar(&pairAutoRealtime, "auto-realtime", false, "start realtime uploads when fsync starts")
	pairAddCmd.Flags().BoolVar(&pairFile, "file", false, "sync a single file instead of a folder")
	pairAddCmd.Flags().StringVar(&pairBackupDir, "backup-dir", "", "where local backups go (default: ~/.config/fsync/backups/<name>)")

	pairCmd.AddCommand(pairAddCmd, pairListCmd)
	rootCmd.AddCommand(pairCmd)
}

func newFolderPair(name, local, remote string) config.FolderPairConfig {
	pair := config.FolderPairConfig{
		Name:                  name,
		IncludeSubdirectories: pairSubdirs,
		AutoConnect:           pairAutoConnect,
		AutoRealtime:          pairAutoRealtime,
		BackupDir:             pairBackupDir,
	}
	if pairFile {
		pair.LocalFile, pair.RemoteFile = local, remote
	} else {
		pair.Local, pair.Remote = local, remote
	}
	return pair
}
