// Package execmgr decides where a command runs — inside the tool
// container or natively — and wraps argv accordingly.
package execmgr

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sentra/pkg/command"
	sentraerrors "sentra/pkg/errors"
	"sentra/pkg/logger"
)

// Mode is the detected execution runtime.
type Mode string

const (
	ModeContainer        Mode = "container"
	ModeNative           Mode = "native"
	ModeNativeRestricted Mode = "native_restricted"
)

// PreparedCommand is the runner-ready shape: binary and argv already
// wrapped for the chosen runtime, plus where raw output should land.
type PreparedCommand struct {
	Binary        string
	Argv          []string
	TempOutputDir string
	Mode          Mode
}

// Manager probes the runtime and prepares commands. The probe result is
// cached; re-probing happens after the TTL expires.
type Manager struct {
	containerName string
	nativeTempDir string
	containerTemp string
	probeTTL      time.Duration

	mu         sync.Mutex
	mode       Mode
	lastProbe  time.Time
	probeError error

	logger *logger.Logger

	// probeFn is swappable for tests.
	probeFn func(ctx context.Context, container string) bool
}

// Config for the manager; zero values pick defaults.
type Config struct {
	ContainerName string        // default "sentra-tools"
	NativeTempDir string        // default "/tmp/sentra"
	ContainerTemp string        // default "/app/output"
	ProbeTTL      time.Duration // default 60s
}

func NewManager(cfg Config) *Manager {
	if cfg.ContainerName == "" {
		cfg.ContainerName = "sentra-tools"
	}
	if cfg.NativeTempDir == "" {
		cfg.NativeTempDir = filepath.Join("/tmp", "sentra")
	}
	if cfg.ContainerTemp == "" {
		cfg.ContainerTemp = "/app/output"
	}
	if cfg.ProbeTTL <= 0 {
		cfg.ProbeTTL = 60 * time.Second
	}
	return &Manager{
		containerName: cfg.ContainerName,
		nativeTempDir: cfg.NativeTempDir,
		containerTemp: cfg.ContainerTemp,
		probeTTL:      cfg.ProbeTTL,
		logger:        logger.NewLogger(logrus.InfoLevel),
		probeFn:       probeContainer,
	}
}

// ForceMode pins the runtime mode, bypassing the probe. Used when the
// operator knows better than the probe (or in tests).
func (m *Manager) ForceMode(mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	m.lastProbe = time.Now().Add(100 * 365 * 24 * time.Hour)
}

// Mode returns the cached runtime mode, re-probing when stale.
func (m *Manager) Mode(ctx context.Context) Mode {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastProbe) < m.probeTTL && m.mode != "" {
		return m.mode
	}

	previous := m.mode
	m.mode = m.detect(ctx)
	m.lastProbe = time.Now()
	if m.mode != previous {
		m.logger.WithFields(logger.Fields{"mode": m.mode}).Info("Execution mode changed")
	}
	return m.mode
}

func (m *Manager) detect(ctx context.Context) Mode {
	if m.probeFn(ctx, m.containerName) {
		return ModeContainer
	}
	if runtime.GOOS == "linux" && hasBinary("pkexec") {
		return ModeNative
	}
	return ModeNativeRestricted
}

// Prepare wraps a final command for the current runtime.
//
// Container mode: binary becomes the container runtime executor and the
// tool runs inside the tool container. Native mode with requires_root:
// argv is prefixed with the privilege-escalation wrapper. Restricted
// mode refuses privileged commands with a typed error.
func (m *Manager) Prepare(ctx context.Context, final *command.FinalCommand) (*PreparedCommand, error) {
	mode := m.Mode(ctx)

	switch mode {
	case ModeContainer:
		argv := append([]string{"exec", m.containerName, final.Binary}, final.Argv...)
		return &PreparedCommand{
			Binary:        "docker",
			Argv:          argv,
			TempOutputDir: m.containerTemp,
			Mode:          mode,
		}, nil

	case ModeNative:
		binary := final.Binary
		argv := final.Argv
		if final.RequiresRoot {
			argv = append([]string{final.Binary}, final.Argv...)
			binary = "pkexec"
		}
		return &PreparedCommand{
			Binary:        binary,
			Argv:          argv,
			TempOutputDir: m.nativeTempDir,
			Mode:          mode,
		}, nil

	default: // ModeNativeRestricted
		if final.RequiresRoot {
			return nil, fmt.Errorf("%w: %s requires privileges unavailable in restricted mode",
				sentraerrors.ErrAuthorizationDenied, final.Binary)
		}
		return &PreparedCommand{
			Binary:        final.Binary,
			Argv:          final.Argv,
			TempOutputDir: m.nativeTempDir,
			Mode:          mode,
		}, nil
	}
}

// TempPath returns a collision-free scratch path appropriate for the
// current runtime.
func (m *Manager) TempPath(ctx context.Context, filename string) string {
	safe := fmt.Sprintf("sentra_%s_%s", uuid.NewString()[:8], filename)
	if m.Mode(ctx) == ModeContainer {
		return m.containerTemp + "/" + safe
	}
	return filepath.Join(m.nativeTempDir, safe)
}

// CanRunPrivileged reports whether root-requiring tools can run at all.
func (m *Manager) CanRunPrivileged(ctx context.Context) bool {
	switch m.Mode(ctx) {
	case ModeContainer:
		return true // the tool container runs as root
	case ModeNative:
		return true
	default:
		return false
	}
}

// probeContainer asks the container runtime whether the tool container
// is running. Probe failures simply mean "not container mode".
func probeContainer(ctx context.Context, container string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, "docker", "inspect", "-f", "{{.State.Running}}", container).Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "true"
}

func hasBinary(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
