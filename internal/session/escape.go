package session

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
)

// argumentEscape escapes a value for use inside a double-quoted command
// argument.
func argumentEscape(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}

func quote(s string) string {
	return `"` + argumentEscape(s) + `"`
}

// uriEscape percent-encodes everything but unreserved characters.
func uriEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func formatSwitch(key string) string {
	return "-" + key
}

func formatStringSwitch(key, value string) string {
	return fmt.Sprintf(`-%s="%s"`, key, argumentEscape(value))
}

func formatIntSwitch(key string, value int) string {
	return "-" + key + "=" + strconv.Itoa(value)
}

func formatBoolSwitch(key string, value bool) string {
	if value {
		return formatIntSwitch(key, 1)
	}
	return formatIntSwitch(key, 0)
}

// command joins the non-empty parts of a command line with single spaces.
func command(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func booleanSwitch(flag bool, name string) string {
	if flag {
		return formatSwitch(name)
	}
	return ""
}

// EscapeFileMask escapes the wildcard characters in the file name part of
// a path, so the engine matches it literally.
func EscapeFileMask(fileMask string) string {
	var path, mask string
	if i := strings.LastIndex(fileMask, "/"); i > 0 {
		path, mask = fileMask[:i+1], fileMask[i+1:]
	} else {
		mask = fileMask
	}
	mask = strings.NewReplacer("[", "[[]", "*", "[*]", "?", "[?]").Replace(mask)
	return path + mask
}

// IncludeTrailingSlash appends "/" to a non-empty remote path lacking one.
func IncludeTrailingSlash(path string) string {
	if path != "" && !strings.HasSuffix(path, "/") {
		return path + "/"
	}
	return path
}

// CombinePaths joins a remote directory and a name. An absolute name is
// returned unchanged.
func CombinePaths(path, name string) string {
	switch {
	case strings.HasPrefix(name, "/"):
		return name
	case path == "":
		return name
	default:
		return IncludeTrailingSlash(path) + name
	}
}

// TranslateRemotePathToLocal maps remotePath under remoteRoot to the
// corresponding path under localRoot.
func TranslateRemotePathToLocal(remotePath, remoteRoot, localRoot string) (string, error) {
	sep := string(filepath.Separator)
	if localRoot != "" && !strings.HasSuffix(localRoot, sep) {
		localRoot += sep
	}
	// Empty roots stay empty; the path may not even start with a slash.
	remoteRoot = IncludeTrailingSlash(remoteRoot)

	if remotePath == remoteRoot {
		return localRoot, nil
	}
	if !strings.HasPrefix(remotePath, remoteRoot) {
		return "", localErrorf(ErrInvalidArgument, "%s does not start with %s", remotePath, remoteRoot)
	}

	sub := strings.TrimPrefix(remotePath[len(remoteRoot):], "/")
	return localRoot + strings.ReplaceAll(sub, "/", sep), nil
}

// TranslateLocalPathToRemote maps localPath under localRoot to the
// corresponding path under remoteRoot.
func TranslateLocalPathToRemote(localPath, localRoot, remoteRoot string) (string, error) {
	sep := string(filepath.Separator)
	if localRoot != "" && !strings.HasSuffix(localRoot, sep) {
		localRoot += sep
	}
	remoteRoot = IncludeTrailingSlash(remoteRoot)

	if localPath == localRoot {
		return remoteRoot, nil
	}
	if !strings.HasPrefix(localPath, localRoot) {
		return "", localErrorf(ErrInvalidArgument, "%s does not start with %s", localPath, localRoot)
	}

	sub := strings.TrimPrefix(localPath[len(localRoot):], sep)
	return remoteRoot + strings.ReplaceAll(sub, sep, "/"), nil
}
