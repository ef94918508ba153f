package testutil

import "time"

// ResponseOption configures the answer to one command.
type ResponseOption func(*EngineResponse)

// Body sets the XML written inside the command's group.
func Body(parts ...string) ResponseOption {
	return func(r *EngineResponse) {
		for _, p := range parts {
			r.Body += p + "\n"
		}
	}
}

// Stdout prints lines to the console before answering.
func Stdout(lines ...string) ResponseOption {
	return func(r *EngineResponse) { r.Stdout = append(r.Stdout, lines...) }
}

// Chunks writes parts one after the other, delay apart, after the body.
func Chunks(delay time.Duration, parts ...string) ResponseOption {
	return func(r *EngineResponse) {
		r.Delay = delay
		r.Chunks = append(r.Chunks, parts...)
	}
}

// Hang leaves the group open and stops answering.
func Hang() ResponseOption {
	return func(r *EngineResponse) { r.Hang = true }
}

// ExitWith ends the engine with code after writing the body.
func ExitWith(code int) ResponseOption {
	return func(r *EngineResponse) { r.Exit = &code }
}

// AwaitInterrupt holds the answer until the engine receives SIGINT.
func AwaitInterrupt() ResponseOption {
	return func(r *EngineResponse) { r.AwaitInterrupt = true }
}
