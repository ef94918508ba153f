// Package testutil provides a scripted fake transfer engine and other test
// helpers.
//
// The fake engine runs inside the test binary itself. A package using it
// calls RunFakeEngineIfRequested first thing in TestMain; CommandFactory then
// re-executes the test binary in engine mode with a script telling it how to
// answer each command.
package testutil

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"
)

// EngineScriptEnv names the environment variable holding the path of the
// script the fake engine follows.
const EngineScriptEnv = "FSYNC_FAKE_ENGINE_SCRIPT"

const sessionNamespace = "http://winscp.net/schema/session/1.0"

// EngineScript tells the fake engine how to behave.
type EngineScript struct {
	// Banner lines are printed to stdout at startup.
	Banner []string `json:"banner,omitempty"`
	// NoLog makes the engine exit with ExitCode without creating its log.
	NoLog    bool `json:"no_log,omitempty"`
	ExitCode int  `json:"exit_code,omitempty"`
	// Silent makes the engine never create its log and never exit.
	Silent bool `json:"silent,omitempty"`
	// Home is the answer to pwd.
	Home string `json:"home,omitempty"`
	// OpenFailure fails the open command with this message; the engine then
	// ends the session and exits with code 1.
	OpenFailure string `json:"open_failure,omitempty"`
	// Responses answer the commands after open, in order.
	Responses []EngineResponse `json:"responses,omitempty"`
	// RecordPath receives every command line the engine reads.
	RecordPath string `json:"record_path,omitempty"`
}

// EngineResponse is the answer to one command.
type EngineResponse struct {
	// Match must prefix the command. A mismatch answers with a failure.
	Match string `json:"match,omitempty"`
	// Stdout lines are printed before the log is written.
	Stdout []string `json:"stdout,omitempty"`
	// AwaitInterrupt waits for SIGINT after printing Stdout.
	AwaitInterrupt bool `json:"await_interrupt,omitempty"`
	// Body is written inside the command's group.
	Body string `json:"body,omitempty"`
	// Chunks are written one after the other, Delay apart, after Body.
	Chunks []string      `json:"chunks,omitempty"`
	Delay  time.Duration `json:"delay,omitempty"`
	// Hang leaves the group open and stops answering.
	Hang bool `json:"hang,omitempty"`
	// Exit ends the engine with this code right after writing, leaving the
	// group open.
	Exit *int `json:"exit,omitempty"`
}

// RunFakeEngineIfRequested turns the current process into the fake engine
// when EngineScriptEnv is set, and never returns in that case.
func RunFakeEngineIfRequested() {
	path := os.Getenv(EngineScriptEnv)
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fake engine:", err)
		os.Exit(99)
	}
	var script EngineScript
	if err := json.Unmarshal(data, &script); err != nil {
		fmt.Fprintln(os.Stderr, "fake engine:", err)
		os.Exit(99)
	}
	os.Exit(newFakeEngine(script, os.Args[1:]).run())
}

type fakeEngine struct {
	script  EngineScript
	logPath string
	log     *os.File
	record  *os.File
	next    int
	signals chan os.Signal
}

func newFakeEngine(script EngineScript, args []string) *fakeEngine {
	e := &fakeEngine{script: script, signals: make(chan os.Signal, 1)}
	for _, arg := range args {
		if v, ok := strings.CutPrefix(arg, "/xmllog="); ok {
			e.logPath = v
		}
	}
	if e.script.Home == "" {
		e.script.Home = "/home/user"
	}
	signal.Notify(e.signals, os.Interrupt)
	return e
}

func (e *fakeEngine) run() int {
	for _, line := range e.script.Banner {
		fmt.Println(line)
	}
	if e.script.NoLog {
		return e.script.ExitCode
	}
	if e.script.RecordPath != "" {
		f, err := os.OpenFile(e.script.RecordPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fake engine:", err)
			return 99
		}
		e.record = f
	}

	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		line := in.Text()
		if e.record != nil {
			fmt.Fprintln(e.record, line)
		}

		switch {
		case strings.HasPrefix(line, "option "):
		case line == "exit":
			e.write("</session>\n")
			return 0
		case strings.HasPrefix(line, "open "):
			if e.script.Silent {
				hang()
			}
			if code, done := e.open(); done {
				return code
			}
		case line == "pwd":
			e.group(fmt.Sprintf(`<cwd><cwd value="%s"/><result success="true"/></cwd>`, e.script.Home))
		default:
			if code, done := e.respond(line); done {
				return code
			}
		}
	}
	return 0
}

func (e *fakeEngine) open() (int, bool) {
	f, err := os.OpenFile(e.logPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fake engine:", err)
		return 99, true
	}
	e.log = f
	e.write(fmt.Sprintf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<session xmlns=\"%s\" name=\"user@example.com\">\n", sessionNamespace))

	if e.script.OpenFailure != "" {
		e.group(Failure(e.script.OpenFailure))
		e.write("</session>\n")
		return 1, true
	}
	e.group(`<result success="true"/>`)
	return 0, false
}

func (e *fakeEngine) respond(line string) (int, bool) {
	if e.next >= len(e.script.Responses) {
		e.group(Failure("Unexpected command " + line))
		return 0, false
	}
	resp := e.script.Responses[e.next]
	e.next++

	if !strings.HasPrefix(line, resp.Match) {
		e.group(Failure(fmt.Sprintf("Expected command %s, got %s", resp.Match, line)))
		return 0, false
	}

	for _, out := range resp.Stdout {
		fmt.Println(out)
	}
	if resp.AwaitInterrupt {
		<-e.signals
	}

	e.write("<group>\n" + resp.Body)
	for _, chunk := range resp.Chunks {
		time.Sleep(resp.Delay)
		e.write(chunk)
	}

	if resp.Exit != nil {
		return *resp.Exit, true
	}
	if resp.Hang {
		hang()
	}
	e.write("</group>\n")
	return 0, false
}

// hang blocks until the session kills the engine.
func hang() {
	for {
		time.Sleep(time.Hour)
	}
}

func (e *fakeEngine) group(body string) {
	e.write("<group>\n" + body + "\n</group>\n")
}

func (e *fakeEngine) write(s string) {
	if e.log == nil {
		return
	}
	_, _ = e.log.WriteString(s)
}
