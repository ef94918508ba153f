package session

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Protocol is the transfer protocol of a session.
type Protocol int

const (
	ProtocolSFTP Protocol = iota
	ProtocolSCP
	ProtocolFTP
	ProtocolWebDAV
)

var protocolNames = map[Protocol]string{
	ProtocolSFTP:   "sftp",
	ProtocolSCP:    "scp",
	ProtocolFTP:    "ftp",
	ProtocolWebDAV: "webdav",
}

func (p Protocol) String() string {
	if name, ok := protocolNames[p]; ok {
		return name
	}
	return fmt.Sprintf("protocol(%d)", int(p))
}

// ParseProtocol maps a configuration name to a Protocol.
func ParseProtocol(name string) (Protocol, error) {
	for p, n := range protocolNames {
		if strings.EqualFold(n, name) {
			return p, nil
		}
	}
	return 0, localErrorf(ErrInvalidArgument, "unknown protocol %q", name)
}

// FTPMode selects active or passive FTP data connections.
type FTPMode int

const (
	FTPModePassive FTPMode = iota
	FTPModeActive
)

// FTPSecure selects FTP over TLS.
type FTPSecure int

const (
	FTPSecureNone FTPSecure = iota
	FTPSecureImplicit
	FTPSecureExplicit
	FTPSecureExplicitSSL
)

// DefaultServerTimeout is how long the engine waits for the server.
const DefaultServerTimeout = 15 * time.Second

// SessionOptions describe the server to connect to.
type SessionOptions struct {
	Protocol   Protocol
	HostName   string
	PortNumber int
	UserName   string
	Password   string
	// Timeout is the engine's server response timeout. Zero means
	// DefaultServerTimeout.
	Timeout time.Duration

	SSHHostKeyFingerprint                string
	GiveUpSecurityAndAcceptAnySSHHostKey bool
	SSHPrivateKeyPath                    string
	SSHPrivateKeyPassphrase              string

	FTPMode   FTPMode
	FTPSecure FTPSecure

	WebDAVSecure bool
	WebDAVRoot   string

	TLSHostCertificateFingerprint                string
	GiveUpSecurityAndAcceptAnyTLSHostCertificate bool

	RawSettings map[string]string
}

func (o SessionOptions) isSSH() bool {
	return o.Protocol == ProtocolSFTP || o.Protocol == ProtocolSCP
}

const redacted = "***"

// openCommand builds the open command and its loggable twin, in which the
// password and passphrase are masked. Switches must follow the URL.
func openCommand(o SessionOptions, defaultConfiguration bool) (cmd, logCmd string, err error) {
	if o.WebDAVSecure && o.Protocol != ProtocolWebDAV {
		return "", "", invalidOption("WebDAVSecure is set, but Protocol is not WebDAV")
	}

	var head string
	switch o.Protocol {
	case ProtocolSFTP:
		head = "sftp://"
	case ProtocolSCP:
		head = "scp://"
	case ProtocolFTP:
		head = "ftp://"
	case ProtocolWebDAV:
		head = "http://"
		if o.WebDAVSecure {
			head = "https://"
		}
	default:
		return "", "", invalidOption("%s is not supported", o.Protocol)
	}

	hasUser := o.UserName != ""
	if hasUser {
		head += uriEscape(o.UserName)
	}
	url, logURL := head, head

	if o.Password != "" {
		if !hasUser {
			return "", "", invalidOption("Password is set, but UserName is not")
		}
		url += ":" + uriEscape(o.Password)
		logURL += ":" + redacted
	}

	var tail string
	if hasUser {
		tail = "@"
	}
	if o.HostName == "" {
		return "", "", invalidOption("HostName is not set")
	}
	tail += uriEscape(o.HostName)
	if o.PortNumber != 0 {
		tail += fmt.Sprintf(":%d", o.PortNumber)
	}
	if o.WebDAVRoot != "" {
		if o.Protocol != ProtocolWebDAV {
			return "", "", invalidOption("WebDAVRoot is set, but Protocol is not WebDAV")
		}
		tail += o.WebDAVRoot
	}
	url += tail
	logURL += tail

	switches, logSwitches, err := openSwitches(o, defaultConfiguration)
	if err != nil {
		return "", "", err
	}

	cmd = command(append([]string{"open", quote(url)}, switches...)...)
	logCmd = command(append([]string{"open", quote(logURL)}, logSwitches...)...)
	return cmd, logCmd, nil
}

func openSwitches(o SessionOptions, defaultConfiguration bool) (switches, logSwitches []string, err error) {
	add := func(sw, logSw string) {
		switches = append(switches, sw)
		logSwitches = append(logSwitches, logSw)
	}
	addSame := func(sw string) { add(sw, sw) }

	if o.SSHHostKeyFingerprint != "" || o.GiveUpSecurityAndAcceptAnySSHHostKey {
		if !o.isSSH() {
			return nil, nil, invalidOption("SSHHostKeyFingerprint or GiveUpSecurityAndAcceptAnySSHHostKey is set, but Protocol is neither SFTP nor SCP")
		}
		fingerprint := o.SSHHostKeyFingerprint
		if o.GiveUpSecurityAndAcceptAnySSHHostKey {
			fingerprint = addStarToList(fingerprint)
		}
		addSame(formatStringSwitch("hostkey", fingerprint))
	} else if o.isSSH() && defaultConfiguration {
		return nil, nil, invalidOption("Protocol is SFTP or SCP, but SSHHostKeyFingerprint is not set")
	}

	if o.SSHPrivateKeyPath != "" {
		if !o.isSSH() {
			return nil, nil, invalidOption("SSHPrivateKeyPath is set, but Protocol is neither SFTP nor SCP")
		}
		addSame(formatStringSwitch("privatekey", o.SSHPrivateKeyPath))
	}

	if o.SSHPrivateKeyPassphrase != "" {
		if o.SSHPrivateKeyPath == "" {
			return nil, nil, invalidOption("SSHPrivateKeyPassphrase is set, but SSHPrivateKeyPath is not")
		}
		add(formatStringSwitch("passphrase", o.SSHPrivateKeyPassphrase), formatStringSwitch("passphrase", redacted))
	}

	if o.FTPSecure != FTPSecureNone {
		if o.Protocol != ProtocolFTP {
			return nil, nil, invalidOption("FTPSecure is set, but Protocol is not FTP")
		}
		switch o.FTPSecure {
		case FTPSecureImplicit:
			addSame(formatSwitch("implicit"))
		case FTPSecureExplicit:
			addSame(formatSwitch("explicit"))
		case FTPSecureExplicitSSL:
			addSame(formatSwitch("explicitssl"))
		default:
			return nil, nil, invalidOption("FTPSecure %d is not supported", o.FTPSecure)
		}
	}

	if o.TLSHostCertificateFingerprint != "" || o.GiveUpSecurityAndAcceptAnyTLSHostCertificate {
		if o.FTPSecure == FTPSecureNone && !o.WebDAVSecure {
			return nil, nil, invalidOption("TLSHostCertificateFingerprint or GiveUpSecurityAndAcceptAnyTLSHostCertificate is set, but neither FTPSecure nor WebDAVSecure is enabled")
		}
		fingerprint := o.TLSHostCertificateFingerprint
		if o.GiveUpSecurityAndAcceptAnyTLSHostCertificate {
			fingerprint = addStarToList(fingerprint)
		}
		addSame(formatStringSwitch("certificate", fingerprint))
	}

	if o.Protocol == ProtocolFTP {
		addSame(formatBoolSwitch("passive", o.FTPMode == FTPModePassive))
	}

	timeout := o.Timeout
	if timeout == 0 {
		timeout = DefaultServerTimeout
	}
	addSame(formatIntSwitch("timeout", int(timeout/time.Second)))

	if len(o.RawSettings) > 0 {
		addSame(formatSwitch("rawsettings"))
		for _, kv := range rawPairs(o.RawSettings) {
			addSame(kv)
		}
	}

	return switches, logSwitches, nil
}

// rawPairs renders settings as name="value" pairs in name order.
func rawPairs(settings map[string]string) []string {
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, fmt.Sprintf(`%s=%s`, name, quote(settings[name])))
	}
	return pairs
}

func addStarToList(list string) string {
	if list == "" {
		return "*"
	}
	return list + ";*"
}

func invalidOption(format string, args ...any) error {
	return localErrorf(ErrInvalidArgument, format, args...)
}
