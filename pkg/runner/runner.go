// Package runner drives tool subprocesses: streamed output, session
// logs, timeouts, cancellation with a kill escalation, and exit-code
// classification.
package runner

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	sentraerrors "sentra/pkg/errors"
	"sentra/pkg/logger"
)

const (
	// Grace window between SIGTERM and SIGKILL.
	killGracePeriod = 5 * time.Second

	// Raw output cap, applied to each session log file separately.
	// Further bytes are dropped after a marker line.
	maxOutputBytes = 100 * 1024 * 1024

	truncationMarker = "--- output truncated at 100MB ---"
)

// ExitClass is the closed classification of how a process ended.
type ExitClass string

const (
	ExitSuccess             ExitClass = "success"
	ExitAuthorizationDenied ExitClass = "authorization_denied"
	ExitToolNotFound        ExitClass = "tool_not_found"
	ExitTimedOut            ExitClass = "timed_out"
	ExitCrashed             ExitClass = "crashed"
	ExitCancelled           ExitClass = "cancelled"
	ExitNonZero             ExitClass = "non_zero"
)

// Err maps the class to the execution error taxonomy; nil for success.
func (c ExitClass) Err(code int) error {
	switch c {
	case ExitSuccess:
		return nil
	case ExitAuthorizationDenied:
		return sentraerrors.ErrAuthorizationDenied
	case ExitToolNotFound:
		return sentraerrors.ErrToolNotFound
	case ExitTimedOut:
		return sentraerrors.ErrTimedOut
	case ExitCrashed:
		return sentraerrors.ErrCrashed
	case ExitCancelled:
		return sentraerrors.ErrCancelled
	default:
		return &sentraerrors.NonZeroExitError{Code: code}
	}
}

// EventKind discriminates streamed runner events.
type EventKind int

const (
	EventStarted EventKind = iota
	EventStdoutLine
	EventStderrLine
	EventInputRequested
	EventCompleted
	EventError
)

// Event is one item on a handle's stream. For a given invocation the
// sequence is exactly one Started, interleaved line events with order
// preserved per stream, then exactly one Completed or Error.
type Event struct {
	Kind      EventKind
	Line      string
	InputKind string
	Result    *Result
	Err       error
}

// Result describes a finished invocation.
type Result struct {
	ExitCode   int
	Class      ExitClass
	StdoutPath string
	StderrPath string
	StartedAt  time.Time
	EndedAt    time.Time
}

// PreparedCommand is what the execution manager hands the runner: the
// final binary and argv (already wrapped for container or privilege
// escalation) plus the session root for logs.
type PreparedCommand struct {
	ExecutionID string
	Binary      string
	Argv        []string
	SessionRoot string
	Timeout     time.Duration
}

// Handle tracks one running invocation.
type Handle struct {
	ExecutionID string
	SessionDir  string

	cmd    *exec.Cmd
	events chan Event
	stdin  io.WriteCloser
	logger *logger.Logger

	mu        sync.Mutex
	cancelled bool
	timedOut  bool
	done      chan struct{}
}

// Events returns the event stream. The channel closes after the final
// Completed or Error event.
func (h *Handle) Events() <-chan Event {
	return h.events
}

// WriteInput appends a newline and sends the bytes to the child's
// stdin. The runner never answers prompts itself.
func (h *Handle) WriteInput(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stdin == nil {
		return fmt.Errorf("stdin not available")
	}
	_, err := h.stdin.Write(append([]byte(text), '\n'))
	return err
}

// Cancel requests graceful termination. If the process is still alive
// after the grace window it is killed along with its process group.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		return
	}
	h.cancelled = true
	h.mu.Unlock()

	terminateProcess(h.cmd)

	select {
	case <-h.done:
	case <-time.After(killGracePeriod):
		killProcessGroup(h.cmd)
	}
}

func (h *Handle) markTimedOut() {
	h.mu.Lock()
	h.timedOut = true
	h.mu.Unlock()
	h.Cancel()
}

// Runner spawns prepared commands.
type Runner struct {
	logger *logger.Logger
}

func NewRunner() *Runner {
	return &Runner{logger: logger.NewLogger(logrus.InfoLevel)}
}

// Spawn starts the process and returns a handle streaming its events.
// Session logs land in <SessionRoot>/<execution-id>/ as stdout.log,
// stderr.log and combined.log.
func (r *Runner) Spawn(prepared PreparedCommand) (*Handle, error) {
	if prepared.ExecutionID == "" {
		prepared.ExecutionID = uuid.NewString()
	}

	sessionDir := filepath.Join(prepared.SessionRoot, prepared.ExecutionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	cmd := exec.Command(prepared.Binary, prepared.Argv...)
	configureProcess(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	handle := &Handle{
		ExecutionID: prepared.ExecutionID,
		SessionDir:  sessionDir,
		cmd:         cmd,
		events:      make(chan Event, 256),
		stdin:       stdin,
		logger:      r.logger,
		done:        make(chan struct{}),
	}

	startedAt := time.Now()
	if err := cmd.Start(); err != nil {
		close(handle.events)
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", sentraerrors.ErrToolNotFound, prepared.Binary)
		}
		return nil, fmt.Errorf("spawn %s: %w", prepared.Binary, err)
	}

	go r.drive(handle, prepared, stdout, stderr, startedAt)
	return handle, nil
}

func (r *Runner) drive(h *Handle, prepared PreparedCommand, stdout, stderr io.Reader, startedAt time.Time) {
	stdoutPath := filepath.Join(h.SessionDir, "stdout.log")
	stderrPath := filepath.Join(h.SessionDir, "stderr.log")
	combined := newSessionLog(filepath.Join(h.SessionDir, "combined.log"))
	defer combined.Close()

	h.events <- Event{Kind: EventStarted}

	var timer *time.Timer
	if prepared.Timeout > 0 {
		timer = time.AfterFunc(prepared.Timeout, h.markTimedOut)
		defer timer.Stop()
	}

	detector := newPromptDetector()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.tail(h, stdout, EventStdoutLine, stdoutPath, combined, detector)
	}()
	go func() {
		defer wg.Done()
		r.tail(h, stderr, EventStderrLine, stderrPath, combined, nil)
	}()
	wg.Wait()

	waitErr := h.cmd.Wait()
	close(h.done)

	h.mu.Lock()
	cancelled, timedOut := h.cancelled, h.timedOut
	h.mu.Unlock()

	result := &Result{
		ExitCode:   exitCode(h.cmd, waitErr),
		StdoutPath: stdoutPath,
		StderrPath: stderrPath,
		StartedAt:  startedAt,
		EndedAt:    time.Now(),
	}
	result.Class = classify(result.ExitCode, waitErr, cancelled, timedOut)

	r.logger.WithFields(logger.Fields{
		"execution_id": h.ExecutionID,
		"exit_code":    result.ExitCode,
		"class":        result.Class,
	}).Info("Process completed")

	h.events <- Event{Kind: EventCompleted, Result: result}
	close(h.events)
}

// tail reads one stream line by line, mirrors it to the per-stream and
// combined logs, and emits line events. Invalid UTF-8 is replaced, not
// dropped.
func (r *Runner) tail(h *Handle, stream io.Reader, kind EventKind, path string, combined *sessionLog, detector *promptDetector) {
	perStream := newSessionLog(path)
	defer perStream.Close()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.ToValidUTF8(scanner.Text(), "�")

		perStream.WriteLine(line)
		combined.WriteLine(line)

		h.events <- Event{Kind: kind, Line: line}

		if detector != nil {
			if inputKind, ok := detector.Detect(line); ok {
				h.events <- Event{Kind: EventInputRequested, InputKind: inputKind}
			}
		}
	}
}

func isNotFound(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound)
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

// classify maps process exit to the closed class set. Cancellation and
// timeout take precedence over the raw code because a killed child
// reports a signal exit.
func classify(code int, waitErr error, cancelled, timedOut bool) ExitClass {
	switch {
	case timedOut:
		return ExitTimedOut
	case cancelled:
		return ExitCancelled
	case code == 0 && waitErr == nil:
		return ExitSuccess
	case code == 126 || code == 127:
		return ExitAuthorizationDenied
	case code == -1 && waitErr != nil:
		return ExitCrashed // signal-terminated
	default:
		return ExitNonZero
	}
}
