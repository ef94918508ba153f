package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/fsync/internal/tracing"
	"github.com/zjrosen/fsync/internal/xmllog"
)

// SynchronizationMode selects which side a synchronization changes.
type SynchronizationMode int

const (
	SynchronizeLocal SynchronizationMode = iota
	SynchronizeRemote
	SynchronizeBoth
)

func (m SynchronizationMode) String() string {
	switch m {
	case SynchronizeLocal:
		return "local"
	case SynchronizeRemote:
		return "remote"
	case SynchronizeBoth:
		return "both"
	default:
		return "unknown"
	}
}

// ParseSynchronizationMode parses "local", "remote" or "both".
func ParseSynchronizationMode(s string) (SynchronizationMode, error) {
	switch s {
	case "local":
		return SynchronizeLocal, nil
	case "remote":
		return SynchronizeRemote, nil
	case "both":
		return SynchronizeBoth, nil
	}
	return 0, localErrorf(ErrInvalidArgument, "unknown synchronization mode %q", s)
}

// SynchronizationCriteria selects how changed files are detected. The zero
// value compares modification times.
type SynchronizationCriteria int

const (
	CriteriaTime SynchronizationCriteria = iota
	CriteriaNone
	CriteriaSize
	CriteriaEither
)

func (c SynchronizationCriteria) String() string {
	switch c {
	case CriteriaNone:
		return "none"
	case CriteriaSize:
		return "size"
	case CriteriaEither:
		return "either"
	default:
		return "time"
	}
}

// ParseSynchronizationCriteria parses "none", "time", "size" or "either".
func ParseSynchronizationCriteria(s string) (SynchronizationCriteria, error) {
	for _, c := range []SynchronizationCriteria{CriteriaTime, CriteriaNone, CriteriaSize, CriteriaEither} {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, localErrorf(ErrInvalidArgument, "unknown synchronization criteria %q", s)
}

// SynchronizeOptions tunes SynchronizeDirectories.
type SynchronizeOptions struct {
	// RemoveFiles deletes files missing on the source side.
	RemoveFiles bool
	// Mirror transfers files even when the target is newer.
	Mirror   bool
	Criteria SynchronizationCriteria
	Transfer *TransferOptions
	// Preview reports the planned changes without applying them.
	Preview bool
}

// begin starts an operation: a span for verb and the checks every operation
// makes. Pair it with end.
func (s *Session) begin(ctx context.Context, verb string, attrs ...attribute.KeyValue) (context.Context, trace.Span, error) {
	attrs = append(attrs, attribute.String(tracing.AttrSessionID, s.id))
	ctx, span := tracing.StartCommand(ctx, s.tracer, verb, attrs...)
	if err := s.checkOpened(); err != nil {
		return ctx, span, err
	}
	if err := ctx.Err(); err != nil {
		return ctx, span, &LocalError{Err: fmt.Errorf("%w: %w", ErrAborted, err)}
	}
	s.opCtx = ctx
	return ctx, span, nil
}

// end finishes an operation started with begin. Events raised while it ran
// are delivered before it returns.
func (s *Session) end(span trace.Span, err *error) {
	*err = normalize(*err)
	s.queue.Dispatch(0)
	s.opCtx = nil
	tracing.End(span, *err)
}

// track registers result for failures reported until the returned func runs.
func (s *Session) track(result failureRecorder) (untrack func()) {
	token := s.registry.Register(result)
	return func() { s.registry.Unregister(token) }
}

// ListDirectory lists the remote directory at path.
func (s *Session) ListDirectory(ctx context.Context, path string) (_ *RemoteDirectoryInfo, err error) {
	_, span, err := s.begin(ctx, "ls", attribute.String(tracing.AttrRemotePath, path))
	defer s.end(span, &err)
	if err != nil {
		return nil, err
	}
	return s.listDirectory(path)
}

func (s *Session) listDirectory(path string) (*RemoteDirectoryInfo, error) {
	if err := s.writeCommand(command("ls", "--", quote(IncludeTrailingSlash(path)))); err != nil {
		return nil, err
	}

	result := &RemoteDirectoryInfo{}
	err := s.readGroup(xmllog.ThrowFailures, func(group *xmllog.Reader) error {
		found := false
		err := s.withElement(group, "ls", func(ls *xmllog.Reader) error {
			ok, err := ls.TryWaitForElement("files", xmllog.ThrowFailures)
			if err != nil || !ok {
				return err
			}
			found = true
			return s.withScope(ls, func(files *xmllog.Reader) error {
				for {
					ok, err := files.TryWaitForElement("file", xmllog.ThrowFailures)
					if err != nil || !ok {
						return err
					}
					info, err := s.readFileInfo(files, path)
					if err != nil {
						return err
					}
					result.Files = append(result.Files, info)
				}
			})
		})
		if err != nil || found {
			return err
		}
		// A failure reported after the listing explains why it is missing.
		if err := group.ReadToEnd(xmllog.ThrowFailures); err != nil {
			return err
		}
		return &LocalError{Msg: "element files not found", Err: ErrProtocol}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PutFiles uploads the files matching localPath to remotePath. With remove
// set the local files are deleted after a successful upload. Per-file
// failures are in the result; the error covers the operation itself.
func (s *Session) PutFiles(ctx context.Context, localPath, remotePath string, remove bool, opts *TransferOptions) (_ *TransferOperationResult, err error) {
	_, span, err := s.begin(ctx, "put",
		attribute.String(tracing.AttrLocalPath, localPath),
		attribute.String(tracing.AttrRemotePath, remotePath))
	defer s.end(span, &err)
	if err != nil {
		return nil, err
	}

	args := []string{"put", booleanSwitch(remove, "delete")}
	args = append(args, opts.Switches()...)
	args = append(args, "--", quote(localPath), quote(remotePath))
	if err := s.writeCommand(command(args...)); err != nil {
		return nil, err
	}

	result := &TransferOperationResult{}
	defer s.track(result)()
	defer s.enableProgress()()

	f := &transferFold{s: s, expected: tagUpload, add: func(ev *TransferEvent) {
		result.Transfers = append(result.Transfers, ev)
		s.scheduleTransferred(ev)
	}}
	table := foldTable{
		tagUpload: f.transfer(SideLocal),
		tagMkdir:  f.directory,
		tagChmod:  f.chmod,
		tagTouch:  f.touch,
	}
	if err := s.readGroup(0, table.fold); err != nil {
		return nil, err
	}
	f.flush()

	span.SetAttributes(
		attribute.Int(tracing.AttrFileCount, len(result.Transfers)),
		attribute.Int(tracing.AttrFailures, len(result.Failures)))
	return result, nil
}

// GetFiles downloads the files matching remotePath to localPath. With
// remove set the remote files are deleted after a successful download.
func (s *Session) GetFiles(ctx context.Context, remotePath, localPath string, remove bool, opts *TransferOptions) (_ *TransferOperationResult, err error) {
	_, span, err := s.begin(ctx, "get",
		attribute.String(tracing.AttrRemotePath, remotePath),
		attribute.String(tracing.AttrLocalPath, localPath))
	defer s.end(span, &err)
	if err != nil {
		return nil, err
	}

	args := []string{"get", booleanSwitch(remove, "delete")}
	args = append(args, opts.Switches()...)
	args = append(args, "--", quote(remotePath), quote(localPath))
	if err := s.writeCommand(command(args...)); err != nil {
		return nil, err
	}

	result := &TransferOperationResult{}
	defer s.track(result)()
	defer s.enableProgress()()

	f := &transferFold{s: s, expected: tagDownload, add: func(ev *TransferEvent) {
		result.Transfers = append(result.Transfers, ev)
		s.scheduleTransferred(ev)
	}}
	table := foldTable{
		tagDownload: f.transfer(SideRemote),
		tagRemoval:  f.removal,
	}
	if err := s.readGroup(0, table.fold); err != nil {
		return nil, err
	}
	f.flush()

	span.SetAttributes(
		attribute.Int(tracing.AttrFileCount, len(result.Transfers)),
		attribute.Int(tracing.AttrFailures, len(result.Failures)))
	return result, nil
}

// RemoveFiles deletes the remote files matching path.
func (s *Session) RemoveFiles(ctx context.Context, path string) (_ *RemovalOperationResult, err error) {
	_, span, err := s.begin(ctx, "rm", attribute.String(tracing.AttrRemotePath, path))
	defer s.end(span, &err)
	if err != nil {
		return nil, err
	}

	if err := s.writeCommand(command("rm", "--", quote(path))); err != nil {
		return nil, err
	}

	result := &RemovalOperationResult{}
	defer s.track(result)()

	table := foldTable{
		tagRemoval: func(r *xmllog.Reader) error {
			ev, err := s.readRemovalEvent(r)
			if err != nil {
				return err
			}
			result.Removals = append(result.Removals, ev)
			return nil
		},
	}
	if err := s.readGroup(0, table.fold); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int(tracing.AttrFileCount, len(result.Removals)))
	return result, nil
}

// SynchronizeDirectories makes one directory tree match the other.
func (s *Session) SynchronizeDirectories(ctx context.Context, mode SynchronizationMode, localPath, remotePath string, opts SynchronizeOptions) (_ *SynchronizationResult, err error) {
	_, span, err := s.begin(ctx, "synchronize",
		attribute.String(tracing.AttrLocalPath, localPath),
		attribute.String(tracing.AttrRemotePath, remotePath))
	defer s.end(span, &err)
	if err != nil {
		return nil, err
	}

	if mode == SynchronizeBoth {
		switch {
		case opts.RemoveFiles:
			return nil, localErrorf(ErrInvalidArgument, "cannot delete files in synchronization mode both")
		case opts.Mirror:
			return nil, localErrorf(ErrInvalidArgument, "cannot mirror files in synchronization mode both")
		case opts.Criteria != CriteriaTime:
			return nil, localErrorf(ErrInvalidArgument, "only time criteria is allowed in synchronization mode both")
		}
	}

	args := []string{"synchronize", mode.String(),
		booleanSwitch(opts.RemoveFiles, "delete"),
		booleanSwitch(opts.Mirror, "mirror")}
	args = append(args, opts.Transfer.Switches()...)
	args = append(args,
		booleanSwitch(opts.Preview, "preview"),
		formatStringSwitch("criteria", opts.Criteria.String()),
		"--", quote(localPath), quote(remotePath))
	if err := s.writeCommand(command(args...)); err != nil {
		return nil, err
	}

	result := &SynchronizationResult{}
	defer s.track(result)()
	defer s.enableProgress()()

	f := &transferFold{s: s, expected: tagDownload, add: func(ev *TransferEvent) {
		if ev.Side == SideLocal {
			result.Uploads = append(result.Uploads, ev)
		} else {
			result.Downloads = append(result.Downloads, ev)
		}
		s.scheduleTransferred(ev)
	}}
	table := foldTable{
		tagUpload:   f.transfer(SideLocal),
		tagDownload: f.transfer(SideRemote),
		tagChmod:    f.chmod,
		tagTouch:    f.touch,
		tagRemoval: func(r *xmllog.Reader) error {
			ev, err := s.readRemovalEvent(r)
			if err != nil {
				return err
			}
			result.Removals = append(result.Removals, ev)
			return nil
		},
	}
	if err := s.readGroup(0, table.fold); err != nil {
		return nil, err
	}
	f.flush()

	span.SetAttributes(
		attribute.Int(tracing.AttrFileCount, len(result.Uploads)+len(result.Downloads)+len(result.Removals)),
		attribute.Int(tracing.AttrFailures, len(result.Failures)))
	return result, nil
}

// ExecuteCommand runs a shell command on the server.
func (s *Session) ExecuteCommand(ctx context.Context, cmd string) (_ *CommandExecutionResult, err error) {
	_, span, err := s.begin(ctx, "call")
	defer s.end(span, &err)
	if err != nil {
		return nil, err
	}

	if err := s.writeCommand("call " + cmd); err != nil {
		return nil, err
	}

	result := &CommandExecutionResult{}
	defer s.track(result)()

	err = s.readGroup(0, func(group *xmllog.Reader) error {
		return s.withElement(group, "call", func(call *xmllog.Reader) error {
			for {
				ok, err := call.Read(0)
				if err != nil || !ok {
					return err
				}
				if v, ok := call.Value("output"); ok {
					result.Output = v
				} else if v, ok := call.Value("erroroutput"); ok {
					result.ErrorOutput = v
				} else if v, ok := call.Value("exitcode"); ok {
					code, err := strconv.Atoi(v)
					if err != nil {
						return localErrorf(ErrProtocol, "invalid exit code %q", v)
					}
					result.ExitCode = code
				}
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetFileInfo returns the attributes of one remote file.
func (s *Session) GetFileInfo(ctx context.Context, path string) (_ *RemoteFileInfo, err error) {
	_, span, err := s.begin(ctx, "stat", attribute.String(tracing.AttrRemotePath, path))
	defer s.end(span, &err)
	if err != nil {
		return nil, err
	}
	return s.stat(path)
}

// FileExists reports whether path exists on the server. Any failure the
// server reports counts as "does not exist".
func (s *Session) FileExists(ctx context.Context, path string) (_ bool, err error) {
	_, span, err := s.begin(ctx, "stat", attribute.String(tracing.AttrRemotePath, path))
	defer s.end(span, &err)
	if err != nil {
		return false, err
	}

	if _, err := s.stat(path); err != nil {
		if IsRemote(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Session) stat(path string) (*RemoteFileInfo, error) {
	if err := s.writeCommand(command("stat", "--", quote(path))); err != nil {
		return nil, err
	}

	info := &RemoteFileInfo{FullName: path, Name: splitName(path)}
	err := s.readGroup(xmllog.ThrowFailures, func(group *xmllog.Reader) error {
		return s.withElement(group, "stat", func(stat *xmllog.Reader) error {
			for {
				ok, err := stat.Read(xmllog.ThrowFailures)
				if err != nil || !ok {
					return err
				}
				if v, ok := stat.Value("filename"); ok {
					info.FullName = v
					info.Name = splitName(v)
				} else if stat.IsElement("file") {
					if err := s.eachNode(stat, func(r *xmllog.Reader) error {
						return readFileProperty(r, info)
					}); err != nil {
						return err
					}
				}
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// CalculateFileChecksum asks the server for the checksum of path using
// algorithm, such as "sha-1" or "md5".
func (s *Session) CalculateFileChecksum(ctx context.Context, algorithm, path string) (_ []byte, err error) {
	_, span, err := s.begin(ctx, "checksum", attribute.String(tracing.AttrRemotePath, path))
	defer s.end(span, &err)
	if err != nil {
		return nil, err
	}

	if err := s.writeCommand(command("checksum", "--", quote(algorithm), quote(path))); err != nil {
		return nil, err
	}

	var (
		digest string
		found  bool
	)
	err = s.readGroup(xmllog.ThrowFailures, func(group *xmllog.Reader) error {
		return s.withElement(group, "checksum", func(c *xmllog.Reader) error {
			for {
				ok, err := c.Read(xmllog.ThrowFailures)
				if err != nil || !ok {
					return err
				}
				if v, ok := c.Value("checksum"); ok {
					digest, found = v, true
				}
			}
		})
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &LocalError{Msg: "element checksum not found", Err: ErrProtocol}
	}
	return decodeChecksum(digest)
}

// decodeChecksum decodes the hex digest the engine reports.
func decodeChecksum(digest string) ([]byte, error) {
	if len(digest)%2 != 0 {
		return nil, localErrorf(ErrProtocol, "invalid string representation of checksum - %s", digest)
	}
	b, err := hex.DecodeString(digest)
	if err != nil {
		return nil, localErrorf(ErrProtocol, "invalid string representation of checksum - %s", digest)
	}
	return b, nil
}

// CreateDirectory creates a remote directory.
func (s *Session) CreateDirectory(ctx context.Context, path string) (err error) {
	_, span, err := s.begin(ctx, "mkdir", attribute.String(tracing.AttrRemotePath, path))
	defer s.end(span, &err)
	if err != nil {
		return err
	}

	if err := s.writeCommand(command("mkdir", quote(path))); err != nil {
		return err
	}
	return s.readGroup(xmllog.ThrowFailures, func(group *xmllog.Reader) error {
		return s.withElement(group, tagMkdir, func(r *xmllog.Reader) error {
			return r.ReadToEnd(0)
		})
	})
}

// MoveFile moves or renames a remote file.
func (s *Session) MoveFile(ctx context.Context, sourcePath, targetPath string) (err error) {
	_, span, err := s.begin(ctx, "mv",
		attribute.String(tracing.AttrRemotePath, sourcePath),
		attribute.String("path.target", targetPath))
	defer s.end(span, &err)
	if err != nil {
		return err
	}

	if err := s.writeCommand(command("mv", quote(sourcePath), quote(targetPath))); err != nil {
		return err
	}
	return s.readGroup(xmllog.ThrowFailures, func(group *xmllog.Reader) error {
		return s.withElement(group, "mv", func(r *xmllog.Reader) error {
			return r.ReadToEnd(0)
		})
	})
}
