package session

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParsePermissions(t *testing.T) {
	tests := []struct {
		text  string
		octal string
	}{
		{"rw-r--r--", "644"},
		{"drwxr-xr-x", "755"},
		{"rwsr-xr-x", "4755"},
		{"rwSr--r--", "4644"},
		{"rwxrwxrwt", "1777"},
		{"---------", "000"},
	}
	for _, tt := range tests {
		p, err := ParsePermissions(tt.text)
		require.NoError(t, err, tt.text)
		require.Equal(t, tt.octal, p.Octal(), tt.text)
	}
}

func TestParsePermissions_Invalid(t *testing.T) {
	for _, text := range []string{"", "rwx", "rwxrwxrwz", "rw-r--r--x!"} {
		_, err := ParsePermissions(text)
		require.ErrorIs(t, err, ErrProtocol, text)
	}
}

func TestParseOctalPermissions_Invalid(t *testing.T) {
	_, err := ParseOctalPermissions("9")
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = ParseOctalPermissions("17777")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFilePermissions_TextRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 0o7777).Draw(t, "numeric")
		text := FilePermissions{Numeric: n}.Text()
		p, err := ParsePermissions(text)
		require.NoError(t, err)
		require.Equal(t, n, p.Numeric, text)
	})
}

func TestRemoteFileInfo_DirectoryKinds(t *testing.T) {
	require.True(t, RemoteFileInfo{Name: ".", FileType: 'd'}.IsThisDirectory())
	require.True(t, RemoteFileInfo{Name: "..", FileType: 'D'}.IsParentDirectory())
	require.False(t, RemoteFileInfo{Name: "..", FileType: '-'}.IsParentDirectory())
}

func TestSplitName(t *testing.T) {
	require.Equal(t, "a.txt", splitName("/home/user/a.txt"))
	require.Equal(t, "dir", splitName("/home/dir/"))
	require.Equal(t, "plain", splitName("plain"))
}

func TestDecodeChecksum(t *testing.T) {
	b, err := decodeChecksum("00ff10")
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0xff, 0x10}, b)

	_, err = decodeChecksum("abc")
	require.ErrorIs(t, err, ErrProtocol)
	require.ErrorContains(t, err, "invalid string representation of checksum - abc")

	_, err = decodeChecksum("zz")
	require.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeChecksum_AnyEvenHexDecodes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOf(rapid.Byte()).Draw(t, "raw")
		digest := ""
		for _, b := range raw {
			digest += string("0123456789ABCDEF"[b>>4]) + string("0123456789abcdef"[b&0xf])
		}
		got, err := decodeChecksum(digest)
		require.NoError(t, err)
		require.Equal(t, len(raw), len(got))
		for i := range raw {
			require.Equal(t, raw[i], got[i])
		}
	})
}

func TestMaskRegexp(t *testing.T) {
	re, err := maskRegexp("*.TXT")
	require.NoError(t, err)
	require.True(t, re.MatchString("notes.txt"))
	require.False(t, re.MatchString("notes.txt.bak"))

	re, err = maskRegexp("a?c.log")
	require.NoError(t, err)
	require.True(t, re.MatchString("abc.log"))
	require.False(t, re.MatchString("abbc.log"))

	re, err = maskRegexp("")
	require.NoError(t, err)
	require.True(t, re.MatchString("anything"))

	re, err = maskRegexp("a+b(1).txt")
	require.NoError(t, err)
	require.True(t, re.MatchString("a+b(1).txt"))
}
