package testutil

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Value renders a leaf element such as <filename value="a.txt"/>.
func Value(tag, value string) string {
	return fmt.Sprintf(`<%s value="%s"/>`, tag, escape(value))
}

// Success is a successful result element.
func Success() string {
	return `<result success="true"/>`
}

// Failed is an unsuccessful result element carrying messages.
func Failed(messages ...string) string {
	return `<result success="false">` + messageList(messages) + `</result>`
}

// Failure is a failure element carrying messages.
func Failure(messages ...string) string {
	return "<failure>" + messageList(messages) + "</failure>"
}

// Upload is a successful upload of file to destination.
func Upload(file, destination string) string {
	return element("upload", Value("filename", file), Value("destination", destination), Success())
}

// FailedUpload is an upload the engine could not complete.
func FailedUpload(file, message string) string {
	return element("upload", Value("filename", file), Failed(message))
}

// Download is a successful download of file to destination.
func Download(file, destination string) string {
	return element("download", Value("filename", file), Value("destination", destination), Success())
}

// Chmod is a successful permission change.
func Chmod(file, permissions string) string {
	return element("chmod", Value("filename", file), Value("permissions", permissions), Success())
}

// Touch is a successful timestamp change.
func Touch(file, modification string) string {
	return element("touch", Value("filename", file), Value("modification", modification), Success())
}

// Remove is a successful removal.
func Remove(file string) string {
	return element("rm", Value("filename", file), Success())
}

// Mkdir is a successful directory creation.
func Mkdir(dir string) string {
	return element("mkdir", Value("filename", dir), Success())
}

// FileEntry describes one file in a listing.
type FileEntry struct {
	Name         string
	Type         string
	Size         int64
	Modification string
	Permissions  string
}

// File renders a file element.
func File(f FileEntry) string {
	parts := []string{Value("filename", f.Name)}
	if f.Type != "" {
		parts = append(parts, Value("type", f.Type))
	}
	parts = append(parts, Value("size", fmt.Sprint(f.Size)))
	if f.Modification != "" {
		parts = append(parts, Value("modification", f.Modification))
	}
	if f.Permissions != "" {
		parts = append(parts, Value("permissions", f.Permissions))
	}
	return element("file", parts...)
}

// Listing is the answer to ls with files.
func Listing(dir string, files ...FileEntry) string {
	entries := make([]string, 0, len(files))
	for _, f := range files {
		entries = append(entries, File(f))
	}
	return element("ls", Value("destination", dir), element("files", entries...), Success())
}

// Stat is the answer to stat.
func Stat(path string, f FileEntry) string {
	f.Name = path
	props := []string{Value("type", f.Type), Value("size", fmt.Sprint(f.Size))}
	if f.Modification != "" {
		props = append(props, Value("modification", f.Modification))
	}
	if f.Permissions != "" {
		props = append(props, Value("permissions", f.Permissions))
	}
	return element("stat", Value("filename", path), element("file", props...), Success())
}

// Checksum is the answer to checksum.
func Checksum(path, algorithm, digest string) string {
	return element("checksum",
		Value("filename", path), Value("algorithm", algorithm), Value("checksum", digest), Success())
}

// Call is the answer to call.
func Call(output, errorOutput string, exitCode int) string {
	return element("call",
		Value("output", output), Value("erroroutput", errorOutput),
		Value("exitcode", fmt.Sprint(exitCode)), Success())
}

// Progress is a console progress line.
func Progress(operation, side string, overall, file, cps int, dir, name string) string {
	return fmt.Sprintf("!progress\t%s\t%s\t%d\t%d\t%d\t%s\t%s", operation, side, overall, file, cps, dir, name)
}

func element(tag string, children ...string) string {
	return "<" + tag + ">" + strings.Join(children, "") + "</" + tag + ">"
}

func messageList(messages []string) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString("<message>" + escape(m) + "</message>")
	}
	return b.String()
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
