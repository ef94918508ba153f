package session

import (
	"context"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/fsync/internal/tracing"
)

// EnumerationOptions controls EnumerateRemoteFiles.
type EnumerationOptions int

const (
	// AllDirectories descends into subdirectories.
	AllDirectories EnumerationOptions = 1 << iota
	// MatchDirectories applies the mask to directories too.
	MatchDirectories
	// EnumerateDirectories includes directories in the result.
	EnumerateDirectories
)

// EnumerateRemoteFiles lists the files under path whose names match mask,
// a wildcard pattern with * and ?. An empty mask matches everything.
func (s *Session) EnumerateRemoteFiles(ctx context.Context, path, mask string, opts EnumerationOptions) (_ []RemoteFileInfo, err error) {
	_, span, err := s.begin(ctx, "ls", attribute.String(tracing.AttrRemotePath, path))
	defer s.end(span, &err)
	if err != nil {
		return nil, err
	}

	re, err := maskRegexp(mask)
	if err != nil {
		return nil, err
	}

	var files []RemoteFileInfo
	if err := s.enumerate(path, re, opts, &files); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int(tracing.AttrFileCount, len(files)))
	return files, nil
}

func (s *Session) enumerate(path string, re *regexp.Regexp, opts EnumerationOptions, out *[]RemoteFileInfo) error {
	dir, err := s.listDirectory(path)
	if err != nil {
		return err
	}

	for _, f := range dir.Files {
		if f.IsThisDirectory() || f.IsParentDirectory() {
			continue
		}
		if !f.IsDirectory() {
			if re.MatchString(f.Name) {
				*out = append(*out, f)
			}
			continue
		}

		if opts&EnumerateDirectories != 0 && (opts&MatchDirectories == 0 || re.MatchString(f.Name)) {
			*out = append(*out, f)
		}
		if opts&AllDirectories != 0 {
			if err := s.enumerate(f.FullName, re, opts, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// maskRegexp translates a wildcard mask to a case-insensitive regexp.
func maskRegexp(mask string) (*regexp.Regexp, error) {
	if mask == "" {
		mask = "*"
	}
	pattern := strings.NewReplacer(`\*`, ".*", `\?`, ".").Replace(regexp.QuoteMeta(mask))
	re, err := regexp.Compile("(?i)^" + pattern + "$")
	if err != nil {
		return nil, localErrorf(ErrInvalidArgument, "invalid file mask %q: %v", mask, err)
	}
	return re, nil
}
