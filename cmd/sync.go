package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/fsync/internal/fsync"
	"github.com/zjrosen/fsync/internal/session"
)

var (
	syncDirection string
	syncPreview   bool
	syncDelete    bool
)

var syncCmd = &cobra.Command{
	Use:   "sync <pair>",
	Short: "Synchronize a folder pair",
	Long: `Synchronize a folder pair by modification time.

--direction remote changes the server, local changes this machine (after
backing up the local folder) and both copies newer files either way.

Examples:
  fsync sync site
  fsync sync site --direction local --delete
  fsync sync site --direction both --preview`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := session.ParseSynchronizationMode(strings.ToLower(syncDirection))
		if err != nil {
			return err
		}
		return withRuntime(cmd, func(rt *runtime) error {
			p, err := lookupPair(rt, args[0])
			if err != nil {
				return err
			}
			if mode == session.SynchronizeLocal && !syncPreview {
				return p.SyncToLocal(rt.ctx, syncDelete)
			}
			return p.Sync(rt.ctx, mode, syncPreview, syncDelete)
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run <pair> [action]",
	Short: "Run a menu action on a folder pair",
	Long: `Run one action on a folder pair. Actions may be abbreviated to any
unambiguous prefix or to their alias. Without an action the interactive menu
starts with the pair selected.

Examples:
  fsync run site sync-to-remote-preview
  fsync run site strp
  fsync run site`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			p, err := lookupPair(rt, args[0])
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return rt.syncer.MenuFor(rt.ctx, cmd.InOrStdin(), p)
			}
			return rt.syncer.Run(rt.ctx, args[1], p)
		})
	},
}

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List the actions accepted by run and the menu",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, a := range fsync.Actions() {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-36s %-8s %s\n", a.Name, a.Alias(), a.Summary)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <pair>",
	Short: "Upload local changes of a folder pair as they happen",
	Long: `Watch the local side of a folder pair and upload every changed file
until interrupted with Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			p, err := lookupPair(rt, args[0])
			if err != nil {
				return err
			}
			if err := p.StartRealtime(rt.ctx); err != nil {
				return err
			}
			rt.out.Info("Press Ctrl+C to stop")
			<-rt.ctx.Done()
			p.StopRealtime()
			return nil
		})
	},
}

func init() {
	syncCmd.Flags().StringVarP(&syncDirection, "direction", "d", "remote", "remote, local or both")
	syncCmd.Flags().BoolVarP(&syncPreview, "preview", "p", false, "only show what would change")
	syncCmd.Flags().BoolVar(&syncDelete, "delete", false, "delete files missing on the source side")

	rootCmd.AddCommand(syncCmd, runCmd, actionsCmd, watchCmd)
}

func lookupPair(rt *runtime, name string) (*fsync.Pair, error) {
	p, ok := rt.syncer.Pair(name)
	if !ok {
		return nil, fmt.Errorf("unknown folder pair %q", name)
	}
	return p, nil
}
