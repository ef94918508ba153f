package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransferOptions_NilMeansDefaults(t *testing.T) {
	var o *TransferOptions
	require.Equal(t, []string{"-nopermissions", "-preservetime", `-transfer="binary"`}, o.Switches())
	require.Equal(t, NewTransferOptions().Switches(), o.Switches())
}

func TestTransferOptions_AllSwitches(t *testing.T) {
	perms, err := ParseOctalPermissions("644")
	require.NoError(t, err)

	o := &TransferOptions{
		FileMask:        "*.txt|.git/",
		FilePermissions: perms,
		TransferMode:    TransferModeAutomatic,
		ResumeSupport:   ResumeSupport{State: ResumeSmart, Threshold: 100},
		SpeedLimit:      512,
	}
	require.Equal(t, []string{
		`-filemask="*.txt|.git/"`,
		`-permissions="644"`,
		"-nopreservetime",
		`-transfer="automatic"`,
		`-resumesupport="100"`,
		"-speed=512",
	}, o.Switches())
}

func TestTransferOptions_ResumeOnOff(t *testing.T) {
	on := &TransferOptions{ResumeSupport: ResumeSupport{State: ResumeOn}}
	require.Contains(t, on.Switches(), `-resumesupport="on"`)
	off := &TransferOptions{ResumeSupport: ResumeSupport{State: ResumeOff}}
	require.Contains(t, off.Switches(), `-resumesupport="off"`)
}
