//go:build !windows

package runner_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sentra/pkg/runner"
)

func collect(t *testing.T, handle *runner.Handle, timeout time.Duration) []runner.Event {
	t.Helper()

	var events []runner.Event
	deadline := time.After(timeout)
	for {
		select {
		case event, ok := <-handle.Events():
			if !ok {
				return events
			}
			events = append(events, event)
		case <-deadline:
			t.Fatal("timed out waiting for runner events")
		}
	}
}

func TestSpawnEcho(t *testing.T) {
	r := runner.NewRunner()
	handle, err := r.Spawn(runner.PreparedCommand{
		Binary:      "echo",
		Argv:        []string{"hello", "world"},
		SessionRoot: t.TempDir(),
		Timeout:     10 * time.Second,
	})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	events := collect(t, handle, 10*time.Second)

	if events[0].Kind != runner.EventStarted {
		t.Error("first event must be Started")
	}

	var sawLine bool
	for _, event := range events {
		if event.Kind == runner.EventStdoutLine && strings.Contains(event.Line, "hello world") {
			sawLine = true
		}
	}
	if !sawLine {
		t.Error("expected streamed stdout line")
	}

	last := events[len(events)-1]
	if last.Kind != runner.EventCompleted {
		t.Fatal("last event must be Completed")
	}
	if last.Result.Class != runner.ExitSuccess || last.Result.ExitCode != 0 {
		t.Errorf("expected clean exit, got %s code %d", last.Result.Class, last.Result.ExitCode)
	}

	// exactly one Started and one Completed
	var started, completed int
	for _, event := range events {
		switch event.Kind {
		case runner.EventStarted:
			started++
		case runner.EventCompleted:
			completed++
		}
	}
	if started != 1 || completed != 1 {
		t.Errorf("expected exactly one Started and one Completed, got %d/%d", started, completed)
	}
}

func TestSessionLogsWritten(t *testing.T) {
	root := t.TempDir()
	r := runner.NewRunner()
	handle, err := r.Spawn(runner.PreparedCommand{
		ExecutionID: "test-exec-1",
		Binary:      "echo",
		Argv:        []string{"logged"},
		SessionRoot: root,
		Timeout:     10 * time.Second,
	})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	events := collect(t, handle, 10*time.Second)

	result := events[len(events)-1].Result
	if result.StdoutPath != filepath.Join(root, "test-exec-1", "stdout.log") {
		t.Errorf("unexpected stdout path: %s", result.StdoutPath)
	}

	raw, err := os.ReadFile(result.StdoutPath)
	if err != nil {
		t.Fatalf("stdout log missing: %v", err)
	}
	if !strings.Contains(string(raw), "logged") {
		t.Errorf("stdout log missing content: %q", raw)
	}

	combined, err := os.ReadFile(filepath.Join(root, "test-exec-1", "combined.log"))
	if err != nil {
		t.Fatalf("combined log missing: %v", err)
	}
	if !strings.Contains(string(combined), "logged") {
		t.Error("combined log missing content")
	}
}

func TestNonZeroExit(t *testing.T) {
	r := runner.NewRunner()
	handle, err := r.Spawn(runner.PreparedCommand{
		Binary:      "sh",
		Argv:        []string{"-c", "exit 3"},
		SessionRoot: t.TempDir(),
		Timeout:     10 * time.Second,
	})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	events := collect(t, handle, 10*time.Second)

	result := events[len(events)-1].Result
	if result.Class != runner.ExitNonZero || result.ExitCode != 3 {
		t.Errorf("expected non_zero/3, got %s/%d", result.Class, result.ExitCode)
	}
}

func TestAuthorizationDeniedCodes(t *testing.T) {
	for _, code := range []string{"126", "127"} {
		r := runner.NewRunner()
		handle, err := r.Spawn(runner.PreparedCommand{
			Binary:      "sh",
			Argv:        []string{"-c", "exit " + code},
			SessionRoot: t.TempDir(),
			Timeout:     10 * time.Second,
		})
		if err != nil {
			t.Fatalf("spawn failed: %v", err)
		}
		events := collect(t, handle, 10*time.Second)
		result := events[len(events)-1].Result
		if result.Class != runner.ExitAuthorizationDenied {
			t.Errorf("exit %s should classify as authorization_denied, got %s", code, result.Class)
		}
	}
}

func TestTimeout(t *testing.T) {
	r := runner.NewRunner()
	handle, err := r.Spawn(runner.PreparedCommand{
		Binary:      "sleep",
		Argv:        []string{"30"},
		SessionRoot: t.TempDir(),
		Timeout:     300 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	start := time.Now()
	events := collect(t, handle, 15*time.Second)
	elapsed := time.Since(start)

	result := events[len(events)-1].Result
	if result.Class != runner.ExitTimedOut {
		t.Errorf("expected timed_out, got %s", result.Class)
	}
	if elapsed > 10*time.Second {
		t.Errorf("timeout escalation took too long: %s", elapsed)
	}
}

func TestCancel(t *testing.T) {
	r := runner.NewRunner()
	handle, err := r.Spawn(runner.PreparedCommand{
		Binary:      "sleep",
		Argv:        []string{"30"},
		SessionRoot: t.TempDir(),
		Timeout:     time.Minute,
	})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	go func() {
		time.Sleep(200 * time.Millisecond)
		handle.Cancel()
	}()

	events := collect(t, handle, 15*time.Second)
	result := events[len(events)-1].Result
	if result.Class != runner.ExitCancelled {
		t.Errorf("expected cancelled, got %s", result.Class)
	}
}

func TestSpawnMissingBinary(t *testing.T) {
	r := runner.NewRunner()
	_, err := r.Spawn(runner.PreparedCommand{
		Binary:      "definitely-not-a-binary-xyz",
		Argv:        nil,
		SessionRoot: t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected spawn of missing binary to fail")
	}
}

func TestPromptDetection(t *testing.T) {
	r := runner.NewRunner()
	handle, err := r.Spawn(runner.PreparedCommand{
		Binary:      "sh",
		Argv:        []string{"-c", `printf 'continue? [y/N]: '; echo; read answer`},
		SessionRoot: t.TempDir(),
		Timeout:     10 * time.Second,
	})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	go func() {
		time.Sleep(300 * time.Millisecond)
		_ = handle.WriteInput("y")
	}()

	events := collect(t, handle, 10*time.Second)

	var sawPrompt bool
	for _, event := range events {
		if event.Kind == runner.EventInputRequested && event.InputKind == "yes_no" {
			sawPrompt = true
		}
	}
	if !sawPrompt {
		t.Error("expected yes_no input request from prompt detection")
	}
}
