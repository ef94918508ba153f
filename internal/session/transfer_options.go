package session

import "fmt"

// TransferMode selects how file contents are converted.
type TransferMode int

const (
	TransferModeBinary TransferMode = iota
	TransferModeASCII
	TransferModeAutomatic
)

func (m TransferMode) String() string {
	switch m {
	case TransferModeASCII:
		return "ascii"
	case TransferModeAutomatic:
		return "automatic"
	default:
		return "binary"
	}
}

// ResumeState selects when interrupted transfers are resumed.
type ResumeState int

const (
	ResumeDefault ResumeState = iota
	ResumeOn
	ResumeOff
	// ResumeSmart resumes files larger than ResumeSupport.Threshold.
	ResumeSmart
)

// ResumeSupport configures transfer resumption.
type ResumeSupport struct {
	State ResumeState
	// Threshold is in KB and only used with ResumeSmart.
	Threshold int
}

func (r ResumeSupport) switchValue() string {
	switch r.State {
	case ResumeOn:
		return "on"
	case ResumeOff:
		return "off"
	case ResumeSmart:
		return fmt.Sprintf("%d", r.Threshold)
	default:
		return ""
	}
}

// TransferOptions tune put, get and synchronize. Use NewTransferOptions for
// the defaults; a nil *TransferOptions means the defaults too.
type TransferOptions struct {
	FileMask          string
	FilePermissions   *FilePermissions
	PreserveTimestamp bool
	TransferMode      TransferMode
	ResumeSupport     ResumeSupport
	// SpeedLimit is in KB/s; zero means unlimited.
	SpeedLimit int
}

// NewTransferOptions returns the default options: binary mode, timestamps
// preserved, permissions untouched.
func NewTransferOptions() *TransferOptions {
	return &TransferOptions{PreserveTimestamp: true}
}

// Switches renders the options as command switches.
func (o *TransferOptions) Switches() []string {
	if o == nil {
		o = NewTransferOptions()
	}

	var switches []string
	if o.FileMask != "" {
		switches = append(switches, formatStringSwitch("filemask", o.FileMask))
	}
	if o.FilePermissions != nil {
		switches = append(switches, formatStringSwitch("permissions", o.FilePermissions.Octal()))
	} else {
		switches = append(switches, formatSwitch("nopermissions"))
	}
	if o.PreserveTimestamp {
		switches = append(switches, formatSwitch("preservetime"))
	} else {
		switches = append(switches, formatSwitch("nopreservetime"))
	}
	switches = append(switches, formatStringSwitch("transfer", o.TransferMode.String()))
	if v := o.ResumeSupport.switchValue(); v != "" {
		switches = append(switches, formatStringSwitch("resumesupport", v))
	}
	if o.SpeedLimit > 0 {
		switches = append(switches, formatIntSwitch("speed", o.SpeedLimit))
	}
	return switches
}
