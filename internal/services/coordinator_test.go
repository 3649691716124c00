//go:build !windows

package services_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentra/internal/dao"
	"sentra/internal/database"
	"sentra/internal/execmgr"
	"sentra/internal/intent"
	"sentra/internal/policy"
	"sentra/internal/registry"
	"sentra/internal/services"
	sentraerrors "sentra/pkg/errors"
	"sentra/pkg/events"
	"sentra/pkg/parsers"
	"sentra/pkg/runner"
)

// stubResolver returns a canned intent, no LLM involved.
type stubResolver struct {
	resolved *intent.Intent
	err      error
}

func (s *stubResolver) Resolve(ctx context.Context, text, hint string) (*intent.Intent, error) {
	return s.resolved, s.err
}

// eventSink records the emitted stream.
type eventSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *eventSink) Emit(event events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *eventSink) snapshot() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *eventSink) waitFor(t *testing.T, eventType events.EventType, timeout time.Duration) events.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, event := range s.snapshot() {
			if event.Type == eventType {
				return event
			}
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s event; have %d events", eventType, len(s.snapshot()))
	return events.Event{}
}

func newTestCoordinator(t *testing.T, resolved *intent.Intent, reg *registry.Registry) (*services.Coordinator, dao.KnowledgeDAO, *eventSink) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state.db")
	db, err := database.Open(path)
	require.NoError(t, err)
	store := dao.NewKnowledgeDAO(db, dao.Options{StorePath: path})

	if reg == nil {
		reg = registry.New()
		require.NoError(t, registry.LoadDefaults(reg))
	}

	execManager := execmgr.NewManager(execmgr.Config{})
	// pin native-restricted so tests never touch docker or pkexec
	execManager.ForceMode(execmgr.ModeNativeRestricted)

	sink := &eventSink{}
	coordinator := services.NewCoordinator(services.Deps{
		Resolver:      &stubResolver{resolved: resolved},
		Gate:          policy.NewGate(policy.Default(), reg),
		Registry:      reg,
		Parsers:       parsers.NewDefaultRegistry(),
		ExecManager:   execManager,
		Runner:        runner.NewRunner(),
		Store:         store,
		Emitter:       sink,
		SessionRoot:   t.TempDir(),
		MaxConcurrent: 2,
	})
	return coordinator, store, sink
}

func TestConfirmGatedIntentBuildsNoCommand(t *testing.T) {
	resolved := &intent.Intent{Kind: intent.SQLInjection, Target: "http://10.0.0.1"}
	coordinator, store, sink := newTestCoordinator(t, resolved, nil)

	outcome, err := coordinator.HandleRequest(context.Background(), "test sql injection", "")

	// exploit tactics are confirm-gated, not silently run
	require.NoError(t, err)
	assert.NotEmpty(t, outcome.ApprovalID)
	assert.Empty(t, outcome.ExecutionID)

	event := sink.waitFor(t, events.TypeApprovalRequired, time.Second)
	assert.Equal(t, string(intent.SQLInjection), event.ApprovalRequired.IntentKind)

	records, err := store.ListExecutions("", 10)
	require.NoError(t, err)
	assert.Empty(t, records, "no spawn before confirmation")
}

func TestBlockedTacticDenied(t *testing.T) {
	p := policy.Default()
	p.BlockedTactics = append(p.BlockedTactics, policy.TacticPortScan)

	reg := registry.New()
	require.NoError(t, registry.LoadDefaults(reg))

	path := filepath.Join(t.TempDir(), "state.db")
	db, err := database.Open(path)
	require.NoError(t, err)

	coordinator := services.NewCoordinator(services.Deps{
		Resolver:    &stubResolver{resolved: &intent.Intent{Kind: intent.PortScan, Target: "10.0.0.1"}},
		Gate:        policy.NewGate(p, reg),
		Registry:    reg,
		Parsers:     parsers.NewDefaultRegistry(),
		ExecManager: execmgr.NewManager(execmgr.Config{}),
		Runner:      runner.NewRunner(),
		Store:       dao.NewKnowledgeDAO(db, dao.Options{StorePath: path}),
		SessionRoot: t.TempDir(),
	})

	_, err = coordinator.HandleRequest(context.Background(), "scan ports", "")
	assert.True(t, errors.Is(err, sentraerrors.ErrPolicyDenied))
}

func TestRejectDiscardsApproval(t *testing.T) {
	resolved := &intent.Intent{Kind: intent.BruteForceSSH, Target: "10.0.0.1"}
	coordinator, _, _ := newTestCoordinator(t, resolved, nil)

	outcome, err := coordinator.HandleRequest(context.Background(), "brute force ssh", "")
	require.NoError(t, err)
	require.NotEmpty(t, outcome.ApprovalID)

	require.NoError(t, coordinator.Reject(outcome.ApprovalID))

	// second resolution of the same approval fails either way
	assert.Error(t, coordinator.Reject(outcome.ApprovalID))
	_, err = coordinator.Approve(context.Background(), outcome.ApprovalID)
	assert.Error(t, err)
}

func TestUnknownIntentReturnsError(t *testing.T) {
	resolved := &intent.Intent{Kind: intent.Unknown, ClarificationWhy: "could not understand"}
	coordinator, _, _ := newTestCoordinator(t, resolved, nil)

	_, err := coordinator.HandleRequest(context.Background(), "do something", "")
	assert.True(t, errors.Is(err, sentraerrors.ErrUnknownIntent))
}

func TestInfoQueryProducesNoCommand(t *testing.T) {
	resolved := &intent.Intent{Kind: intent.InfoQuery}
	coordinator, store, _ := newTestCoordinator(t, resolved, nil)

	outcome, err := coordinator.HandleRequest(context.Background(), "what is a port scan?", "")
	require.NoError(t, err)
	assert.Empty(t, outcome.ExecutionID)

	records, err := store.ListExecutions("", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
