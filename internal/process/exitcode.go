package process

import "fmt"

// FormatExitCode renders an exit code for diagnostics. Negative codes are
// usually NTSTATUS values, so their hexadecimal form is appended.
func FormatExitCode(code int) string {
	if code < 0 {
		return fmt.Sprintf("%d (%X)", code, uint32(code)) //nolint:gosec // G115: intentional two's complement view
	}
	return fmt.Sprintf("%d", code)
}
