package cmd

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/fsync/internal/session"
)

var (
	lsMask      string
	lsRecursive bool
	putDelete   bool
	getDelete   bool
)

var lsCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: "List a remote directory",
	Long: `List a remote directory.

Examples:
  fsync ls /var/www
  fsync ls /var/www --mask "*.html" --recursive`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			return rt.session(func(ctx context.Context, s *session.Session) error {
				if lsMask == "" && !lsRecursive {
					dir, err := s.ListDirectory(ctx, args[0])
					if err != nil {
						return err
					}
					for _, f := range dir.Files {
						rt.out.Info("%s", formatEntry(f, f.Name))
					}
					return nil
				}

				var opts session.EnumerationOptions
				if lsRecursive {
					opts |= session.AllDirectories | session.EnumerateDirectories
				}
				files, err := s.EnumerateRemoteFiles(ctx, args[0], lsMask, opts)
				if err != nil {
					return err
				}
				for _, f := range files {
					rt.out.Info("%s", formatEntry(f, f.FullName))
				}
				return nil
			})
		})
	},
}

var putCmd = &cobra.Command{
	Use:   "put <local> <remote>",
	Short: "Upload files",
	Long: `Upload files. The local path may contain wildcards; a remote path
ending in a slash receives the files under their own names.

Examples:
  fsync put ./index.html /var/www/
  fsync put "./dist/*" /var/www/ --delete`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			return rt.session(func(ctx context.Context, s *session.Session) error {
				res, err := s.PutFiles(ctx, args[0], args[1], putDelete, nil)
				if err != nil {
					return err
				}
				return reportTransfers(rt, res)
			})
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <remote> <local>",
	Short: "Download files",
	Long: `Download files. The remote path may contain wildcards.

Examples:
  fsync get /var/www/index.html ./
  fsync get "/var/log/*.log" ./logs/ --delete`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			return rt.session(func(ctx context.Context, s *session.Session) error {
				res, err := s.GetFiles(ctx, args[0], args[1], getDelete, nil)
				if err != nil {
					return err
				}
				return reportTransfers(rt, res)
			})
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Remove remote files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			return rt.session(func(ctx context.Context, s *session.Session) error {
				res, err := s.RemoveFiles(ctx, args[0])
				if err != nil {
					return err
				}
				rt.recorder.Removals(s.ID(), res.Removals)
				for _, r := range res.Removals {
					if r.Error != nil {
						rt.out.Failure(fmt.Errorf("removing %s: %w", r.FileName, r.Error))
						continue
					}
					rt.out.Success("Removed %s", r.FileName)
				}
				return res.Check()
			})
		})
	},
}

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show the attributes of a remote file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			return rt.session(func(ctx context.Context, s *session.Session) error {
				info, err := s.GetFileInfo(ctx, args[0])
				if err != nil {
					return err
				}
				rt.out.Info("%s", formatEntry(*info, info.FullName))
				return nil
			})
		})
	},
}

var checksumCmd = &cobra.Command{
	Use:   "checksum <alg> <path>",
	Short: "Calculate the checksum of a remote file",
	Long: `Calculate the checksum of a remote file on the server.

Examples:
  fsync checksum sha-256 /var/www/index.html`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			return rt.session(func(ctx context.Context, s *session.Session) error {
				sum, err := s.CalculateFileChecksum(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				rt.out.Info("%s  %s", hex.EncodeToString(sum), args[1])
				return nil
			})
		})
	},
}

var callCmd = &cobra.Command{
	Use:   "call <command>",
	Short: "Run a shell command on the server",
	Long: `Run a shell command on the server and print its output. The exit
code of the remote command is reported as an error when it is not zero.

Examples:
  fsync call "ls -la /var/www"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			return rt.session(func(ctx context.Context, s *session.Session) error {
				res, err := s.ExecuteCommand(ctx, args[0])
				if err != nil {
					return err
				}
				if res.Output != "" {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Output)
				}
				if res.ErrorOutput != "" {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), res.ErrorOutput)
				}
				if err := res.Check(); err != nil {
					return err
				}
				if res.ExitCode != 0 {
					return fmt.Errorf("remote command exited with code %d", res.ExitCode)
				}
				return nil
			})
		})
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a remote directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			return rt.session(func(ctx context.Context, s *session.Session) error {
				if err := s.CreateDirectory(ctx, args[0]); err != nil {
					return err
				}
				rt.out.Success("Created %s", args[0])
				return nil
			})
		})
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <src> <dst>",
	Short: "Move or rename a remote file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			return rt.session(func(ctx context.Context, s *session.Session) error {
				if err := s.MoveFile(ctx, args[0], args[1]); err != nil {
					return err
				}
				rt.out.Success("Moved %s to %s", args[0], args[1])
				return nil
			})
		})
	},
}

func init() {
	lsCmd.Flags().StringVarP(&lsMask, "mask", "m", "", "only list names matching this wildcard mask")
	lsCmd.Flags().BoolVarP(&lsRecursive, "recursive", "r", false, "descend into subdirectories")
	putCmd.Flags().BoolVar(&putDelete, "delete", false, "delete the local files after upload")
	getCmd.Flags().BoolVar(&getDelete, "delete", false, "delete the remote files after download")

	rootCmd.AddCommand(lsCmd, putCmd, getCmd, rmCmd, statCmd, checksumCmd, callCmd, mkdirCmd, mvCmd)
}

// formatEntry renders one listing line: type, permissions, size, time, name.
func formatEntry(f session.RemoteFileInfo, name string) string {
	perms := "---------"
	if f.FilePermissions != nil {
		perms = f.FilePermissions.Text()
	}
	modified := ""
	if !f.LastWriteTime.IsZero() {
		modified = f.LastWriteTime.Format("2006-01-02 15:04:05")
	}
	return fmt.Sprintf("%c%s %10d %19s %s", f.FileType, perms, f.Length, modified, name)
}

func reportTransfers(rt *runtime, res *session.TransferOperationResult) error {
	for _, t := range res.Transfers {
		rt.out.Transfer(t)
	}
	return res.Check()
}
