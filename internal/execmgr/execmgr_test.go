package execmgr

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"sentra/internal/registry"
	"sentra/pkg/command"
	sentraerrors "sentra/pkg/errors"
)

func managerWithProbe(containerRunning bool) *Manager {
	m := NewManager(Config{ContainerName: "sentra-tools"})
	m.probeFn = func(ctx context.Context, container string) bool {
		return containerRunning
	}
	return m
}

func finalCommand(requiresRoot bool) *command.FinalCommand {
	return &command.FinalCommand{
		Binary:       "nmap",
		Argv:         []string{"-sT", "192.168.1.1"},
		Target:       "192.168.1.1",
		ToolID:       "nmap_port_scan",
		RequiresRoot: requiresRoot,
		Risk:         registry.RiskMedium,
	}
}

func TestContainerModePrepare(t *testing.T) {
	m := managerWithProbe(true)
	ctx := context.Background()

	if mode := m.Mode(ctx); mode != ModeContainer {
		t.Fatalf("expected container mode, got %s", mode)
	}

	prepared, err := m.Prepare(ctx, finalCommand(false))
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}

	if prepared.Binary != "docker" {
		t.Errorf("expected docker executor, got %s", prepared.Binary)
	}
	expected := []string{"exec", "sentra-tools", "nmap", "-sT", "192.168.1.1"}
	if !reflect.DeepEqual(prepared.Argv, expected) {
		t.Errorf("expected argv %v, got %v", expected, prepared.Argv)
	}
	if prepared.TempOutputDir != "/app/output" {
		t.Errorf("container temp should map to mounted path, got %s", prepared.TempOutputDir)
	}
}

func TestContainerModeAllowsPrivileged(t *testing.T) {
	m := managerWithProbe(true)
	if !m.CanRunPrivileged(context.Background()) {
		t.Error("container mode should allow privileged commands")
	}
}

func TestRestrictedModeRefusesPrivileged(t *testing.T) {
	m := managerWithProbe(false)
	ctx := context.Background()

	// force restricted regardless of the host's pkexec
	m.mu.Lock()
	m.mode = ModeNativeRestricted
	m.lastProbe = time.Now()
	m.mu.Unlock()

	_, err := m.Prepare(ctx, finalCommand(true))
	if !errors.Is(err, sentraerrors.ErrAuthorizationDenied) {
		t.Errorf("expected authorization denial, got %v", err)
	}

	// unprivileged commands still run untouched
	prepared, err := m.Prepare(ctx, finalCommand(false))
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if prepared.Binary != "nmap" {
		t.Errorf("expected unwrapped binary, got %s", prepared.Binary)
	}
}

func TestNativeModeWrapsPrivileged(t *testing.T) {
	m := managerWithProbe(false)
	ctx := context.Background()

	m.mu.Lock()
	m.mode = ModeNative
	m.lastProbe = time.Now()
	m.mu.Unlock()

	prepared, err := m.Prepare(ctx, finalCommand(true))
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if prepared.Binary != "pkexec" {
		t.Errorf("expected pkexec wrapper, got %s", prepared.Binary)
	}
	expected := []string{"nmap", "-sT", "192.168.1.1"}
	if !reflect.DeepEqual(prepared.Argv, expected) {
		t.Errorf("expected argv %v, got %v", expected, prepared.Argv)
	}
}

func TestProbeCaching(t *testing.T) {
	probes := 0
	m := NewManager(Config{ProbeTTL: time.Hour})
	m.probeFn = func(ctx context.Context, container string) bool {
		probes++
		return true
	}

	ctx := context.Background()
	m.Mode(ctx)
	m.Mode(ctx)
	m.Mode(ctx)

	if probes != 1 {
		t.Errorf("expected a single probe within the TTL, got %d", probes)
	}
}

func TestTempPathUnique(t *testing.T) {
	m := managerWithProbe(false)
	ctx := context.Background()

	first := m.TempPath(ctx, "scan.xml")
	second := m.TempPath(ctx, "scan.xml")
	if first == second {
		t.Error("temp paths must not collide")
	}
}
