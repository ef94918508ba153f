package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/zjrosen/fsync/internal/xmllog"
)

// FilePermissions are Unix style permission bits.
type FilePermissions struct {
	Numeric int
}

// permission letters for user, group and other; bit order rwx.
var permissionBits = [9]struct {
	letter byte
	bit    int
}{
	{'r', 0o400}, {'w', 0o200}, {'x', 0o100},
	{'r', 0o040}, {'w', 0o020}, {'x', 0o010},
	{'r', 0o004}, {'w', 0o002}, {'x', 0o001},
}

// special bits shown in the execute column of user, group and other.
var specialBits = [3]struct {
	set, unset byte
	bit        int
}{
	{'s', 'S', 0o4000},
	{'s', 'S', 0o2000},
	{'t', 'T', 0o1000},
}

// ParsePermissions parses "rwxr-xr-x" text. A leading file type character
// such as "d" is ignored.
func ParsePermissions(text string) (*FilePermissions, error) {
	if len(text) == 10 {
		text = text[1:]
	}
	if len(text) != 9 {
		return nil, localErrorf(ErrProtocol, "invalid permissions %q", text)
	}

	numeric := 0
	for i, pb := range permissionBits {
		c := text[i]
		if i%3 == 2 {
			sp := specialBits[i/3]
			switch c {
			case sp.set:
				numeric |= sp.bit | pb.bit
				continue
			case sp.unset:
				numeric |= sp.bit
				continue
			}
		}
		switch c {
		case pb.letter:
			numeric |= pb.bit
		case '-':
		default:
			return nil, localErrorf(ErrProtocol, "invalid permissions %q", text)
		}
	}
	return &FilePermissions{Numeric: numeric}, nil
}

// ParseOctalPermissions parses "644" or "0755".
func ParseOctalPermissions(octal string) (*FilePermissions, error) {
	n, err := strconv.ParseInt(octal, 8, 32)
	if err != nil || n < 0 || n > 0o7777 {
		return nil, localErrorf(ErrInvalidArgument, "invalid octal permissions %q", octal)
	}
	return &FilePermissions{Numeric: int(n)}, nil
}

// Octal renders the permissions as the engine expects them, e.g. "644".
func (p FilePermissions) Octal() string {
	if p.Numeric > 0o777 {
		return fmt.Sprintf("%04o", p.Numeric)
	}
	return fmt.Sprintf("%03o", p.Numeric)
}

// Text renders the permissions as "rw-r--r--".
func (p FilePermissions) Text() string {
	b := make([]byte, 9)
	for i, pb := range permissionBits {
		b[i] = '-'
		if p.Numeric&pb.bit != 0 {
			b[i] = pb.letter
		}
		if i%3 == 2 {
			sp := specialBits[i/3]
			if p.Numeric&sp.bit != 0 {
				if b[i] == '-' {
					b[i] = sp.unset
				} else {
					b[i] = sp.set
				}
			}
		}
	}
	return string(b)
}

func (p FilePermissions) String() string {
	return p.Text()
}

// RemoteFileInfo describes one remote file or directory.
type RemoteFileInfo struct {
	Name            string
	FullName        string
	FileType        rune
	Length          int64
	LastWriteTime   time.Time
	FilePermissions *FilePermissions
	Owner           string
	Group           string
}

// IsDirectory reports whether the entry is a directory.
func (f RemoteFileInfo) IsDirectory() bool {
	return unicode.ToUpper(f.FileType) == 'D'
}

// IsThisDirectory reports whether the entry is ".".
func (f RemoteFileInfo) IsThisDirectory() bool {
	return f.IsDirectory() && f.Name == "."
}

// IsParentDirectory reports whether the entry is "..".
func (f RemoteFileInfo) IsParentDirectory() bool {
	return f.IsDirectory() && f.Name == ".."
}

// RemoteDirectoryInfo is a directory listing.
type RemoteDirectoryInfo struct {
	Files []RemoteFileInfo
}

// readFileProperty applies one leaf element of a file element to info.
func readFileProperty(r *xmllog.Reader, info *RemoteFileInfo) error {
	if v, ok := r.Value("type"); ok {
		if v != "" {
			info.FileType = []rune(v)[0]
		}
		return nil
	}
	if v, ok := r.Value("size"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return localErrorf(ErrProtocol, "invalid file size %q", v)
		}
		info.Length = n
		return nil
	}
	if v, ok := r.Value("modification"); ok {
		t, err := parseLogTime(v)
		if err != nil {
			return err
		}
		info.LastWriteTime = t
		return nil
	}
	if v, ok := r.Value("permissions"); ok {
		perms, err := ParsePermissions(v)
		if err != nil {
			return err
		}
		info.FilePermissions = perms
		return nil
	}
	if v, ok := r.Value("owner"); ok {
		info.Owner = v
		return nil
	}
	if v, ok := r.Value("group"); ok {
		info.Group = v
	}
	return nil
}

func (s *Session) readFileInfo(r *xmllog.Reader, dir string) (RemoteFileInfo, error) {
	var info RemoteFileInfo
	err := s.eachNode(r, func(c *xmllog.Reader) error {
		if v, ok := c.Value("filename"); ok {
			info.Name = v
			return nil
		}
		return readFileProperty(c, &info)
	})
	if dir != "" {
		info.FullName = CombinePaths(dir, info.Name)
	} else {
		info.FullName = info.Name
	}
	return info, err
}

// splitName returns the last path segment of a remote path.
func splitName(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
