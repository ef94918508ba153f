package testutil

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func requireWellFormed(t *testing.T, fragment string) {
	t.Helper()
	dec := xml.NewDecoder(strings.NewReader("<group>" + fragment + "</group>"))
	for {
		_, err := dec.Token()
		if err != nil {
			require.Equal(t, "EOF", err.Error(), "fragment %q", fragment)
			return
		}
	}
}

func TestPresets_AreWellFormed(t *testing.T) {
	for _, fragment := range []string{
		Upload("/tmp/a.txt", "/home/user/a.txt"),
		FailedUpload("/tmp/b.txt", "Permission denied"),
		Download("/home/user/a.txt", "/tmp/a.txt"),
		Chmod("/home/user/a.txt", "rw-r--r--"),
		Touch("/home/user/a.txt", "2026-01-02T03:04:05.000Z"),
		Remove("/home/user/old.txt"),
		Mkdir("/home/user/dir"),
		Listing("/home/user/", FileEntry{Name: "a & b.txt", Type: "-", Size: 3}),
		Stat("/home/user/a.txt", FileEntry{Type: "-", Size: 10, Permissions: "rw-r--r--"}),
		Checksum("/home/user/a.txt", "sha-1", "abcd"),
		Call("out", "", 0),
		Failure(`quote " and <angle>`),
	} {
		requireWellFormed(t, fragment)
	}
}

func TestValue_EscapesAttribute(t *testing.T) {
	require.Equal(t, `<filename value="a &amp; &#34;b&#34;"/>`, Value("filename", `a & "b"`))
}

func TestProgress_Format(t *testing.T) {
	line := Progress("upload", "local", 50, 25, 1024, "/tmp", "a.txt")
	require.Equal(t, "!progress\tupload\tlocal\t50\t25\t1024\t/tmp\ta.txt", line)
}
