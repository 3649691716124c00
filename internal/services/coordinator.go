package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sentra/internal/dao"
	"sentra/internal/execmgr"
	"sentra/internal/intent"
	"sentra/internal/models"
	"sentra/internal/policy"
	"sentra/internal/registry"
	"sentra/pkg/command"
	sentraerrors "sentra/pkg/errors"
	"sentra/pkg/events"
	"sentra/pkg/ids"
	"sentra/pkg/logger"
	"sentra/pkg/parsers"
	"sentra/pkg/runner"
)

// Forwarded output lines per invocation before the UI stream is
// trimmed. Session logs keep everything up to the file cap regardless.
const maxForwardedLines = 10000

// IntentResolver is the coordinator's view of the LLM collaborator.
type IntentResolver interface {
	Resolve(ctx context.Context, userText, targetHint string) (*intent.Intent, error)
}

// Coordinator binds the resolver, gate, registry, builder, execution
// manager, runner, parsers and knowledge store, and emits the typed
// event stream.
type Coordinator struct {
	resolver    IntentResolver
	gate        *policy.Gate
	registry    *registry.Registry
	parsers     *parsers.Registry
	execMgr     *execmgr.Manager
	runner      *runner.Runner
	store       dao.KnowledgeDAO
	secrets     *dao.SecretBox
	emitter     events.Emitter
	sessionRoot string

	sem    chan struct{}
	privMu sync.Mutex

	mu        sync.Mutex
	approvals map[string]*pendingApproval
	handles   map[string]*runner.Handle

	logger *logger.Logger
}

type pendingApproval struct {
	resolved *intent.Intent
	reason   string
}

// Deps collects the coordinator's collaborators.
type Deps struct {
	Resolver      IntentResolver
	Gate          *policy.Gate
	Registry      *registry.Registry
	Parsers       *parsers.Registry
	ExecManager   *execmgr.Manager
	Runner        *runner.Runner
	Store         dao.KnowledgeDAO
	Secrets       *dao.SecretBox
	Emitter       events.Emitter
	SessionRoot   string
	MaxConcurrent int
}

func NewCoordinator(deps Deps) *Coordinator {
	if deps.MaxConcurrent < 1 {
		deps.MaxConcurrent = 4
	}
	if deps.Emitter == nil {
		deps.Emitter = events.EmitterFunc(func(events.Event) {})
	}
	return &Coordinator{
		resolver:    deps.Resolver,
		gate:        deps.Gate,
		registry:    deps.Registry,
		parsers:     deps.Parsers,
		execMgr:     deps.ExecManager,
		runner:      deps.Runner,
		store:       deps.Store,
		secrets:     deps.Secrets,
		emitter:     deps.Emitter,
		sessionRoot: deps.SessionRoot,
		sem:         make(chan struct{}, deps.MaxConcurrent),
		approvals:   make(map[string]*pendingApproval),
		handles:     make(map[string]*runner.Handle),
		logger:      logger.NewLogger(logrus.InfoLevel),
	}
}

// Outcome describes how a request was dispatched.
type Outcome struct {
	ExecutionID string
	ApprovalID  string
	Intent      *intent.Intent
	Message     string
}

// HandleRequest drives the full planning path: resolve, gate, build,
// execute. Confirm-gated intents park in the approval table and emit
// ApprovalRequired instead of spawning.
func (c *Coordinator) HandleRequest(ctx context.Context, text, targetHint string) (*Outcome, error) {
	resolved, err := c.resolver.Resolve(ctx, text, targetHint)
	if err != nil {
		return nil, err
	}

	switch resolved.Kind {
	case intent.InfoQuery:
		return &Outcome{Intent: resolved, Message: "informational request, no command produced"}, nil
	case intent.Unknown:
		return &Outcome{Intent: resolved, Message: resolved.ClarificationWhy},
			fmt.Errorf("%w: %s", sentraerrors.ErrUnknownIntent, resolved.ClarificationWhy)
	}

	decision := c.gate.Check(resolved)
	switch decision.Verdict {
	case policy.Deny:
		return &Outcome{Intent: resolved}, sentraerrors.NewPolicyDenied(decision.Reason)

	case policy.AllowWithConfirmation:
		approvalID := c.parkForApproval(resolved, decision.Reason)
		return &Outcome{ApprovalID: approvalID, Intent: resolved, Message: decision.Reason}, nil
	}

	executionID, err := c.ExecuteIntent(ctx, resolved)
	if err != nil {
		return &Outcome{Intent: resolved}, err
	}
	return &Outcome{ExecutionID: executionID, Intent: resolved}, nil
}

func (c *Coordinator) parkForApproval(resolved *intent.Intent, reason string) string {
	approvalID := uuid.NewString()

	c.mu.Lock()
	c.approvals[approvalID] = &pendingApproval{resolved: resolved, reason: reason}
	c.mu.Unlock()

	tool, _ := c.registry.Lookup(resolved.Kind)
	risk := string(registry.RiskHigh)
	if tool != nil {
		risk = string(tool.Risk)
	}

	event := events.Now(events.TypeApprovalRequired)
	event.ApprovalRequired = &events.ApprovalRequired{
		ApprovalID: approvalID,
		IntentKind: string(resolved.Kind),
		Target:     resolved.Target,
		Params:     resolved.Params,
		Risk:       risk,
		Reason:     reason,
	}
	c.emitter.Emit(event)

	c.logger.WithFields(logger.Fields{
		"approval_id": approvalID,
		"intent":      resolved.Kind,
	}).Info("Approval required before execution")

	return approvalID
}

// Approve releases a parked intent for execution.
func (c *Coordinator) Approve(ctx context.Context, approvalID string) (string, error) {
	c.mu.Lock()
	pending, ok := c.approvals[approvalID]
	delete(c.approvals, approvalID)
	c.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("no pending approval %s", approvalID)
	}
	return c.ExecuteIntent(ctx, pending.resolved)
}

// Reject discards a parked intent.
func (c *Coordinator) Reject(approvalID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.approvals[approvalID]; !ok {
		return fmt.Errorf("no pending approval %s", approvalID)
	}
	delete(c.approvals, approvalID)
	return nil
}

// ExecuteIntent synthesizes and spawns the command for an already-gated
// intent, returning the execution id. The invocation itself proceeds in
// the background; progress arrives on the event stream.
func (c *Coordinator) ExecuteIntent(ctx context.Context, resolved *intent.Intent) (string, error) {
	tool, ok := c.registry.Lookup(resolved.Kind)
	if !ok {
		return "", fmt.Errorf("%w: no tool registered for %s", sentraerrors.ErrUnknownIntent, resolved.Kind)
	}

	final, err := command.Build(tool, resolved.Target, resolved.Params)
	if err != nil {
		return "", err
	}

	prepared, err := c.execMgr.Prepare(ctx, final)
	if err != nil {
		return "", err
	}

	executionID := uuid.NewString()

	go c.run(ctx, executionID, tool, final, prepared)

	return executionID, nil
}

func (c *Coordinator) run(ctx context.Context, executionID string, tool *registry.ToolDef,
	final *command.FinalCommand, prepared *execmgr.PreparedCommand) {

	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logger.Fields{
				"execution_id": executionID,
				"panic":        r,
			}).Error("Panic during invocation")
		}
	}()

	// Privilege escalation prompts are serialized: one outstanding
	// prompt at a time.
	privileged := prepared.Mode == execmgr.ModeNative && final.RequiresRoot
	if privileged {
		c.privMu.Lock()
		defer c.privMu.Unlock()
	}

	handle, err := c.runner.Spawn(runner.PreparedCommand{
		ExecutionID: executionID,
		Binary:      prepared.Binary,
		Argv:        prepared.Argv,
		SessionRoot: c.sessionRoot,
		Timeout:     tool.Timeout,
	})
	if err != nil {
		c.recordFailure(executionID, tool, final, err)
		return
	}

	c.mu.Lock()
	c.handles[executionID] = handle
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.handles, executionID)
		c.mu.Unlock()
	}()

	// Cancellation from the caller propagates to the child.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			handle.Cancel()
		case <-watchDone:
		}
	}()

	c.pump(executionID, tool, final, handle)
}

// pump forwards runner events to the UI stream and finishes the
// invocation when the runner completes.
func (c *Coordinator) pump(executionID string, tool *registry.ToolDef,
	final *command.FinalCommand, handle *runner.Handle) {

	forwarded := 0

	for event := range handle.Events() {
		switch event.Kind {
		case runner.EventStarted:
			started := events.Now(events.TypeToolStarted)
			started.ToolStarted = &events.ToolStarted{
				ExecutionID: executionID,
				ToolID:      tool.ToolID,
				Argv:        append([]string{final.Binary}, final.Argv...),
				Target:      final.Target,
			}
			c.emitter.Emit(started)

		case runner.EventStdoutLine, runner.EventStderrLine:
			forwarded++
			if forwarded > maxForwardedLines {
				continue // session logs keep the full output
			}
			stream := events.StreamStdout
			if event.Kind == runner.EventStderrLine {
				stream = events.StreamStderr
			}
			chunk := events.Now(events.TypeToolOutputChunk)
			chunk.ToolOutputChunk = &events.ToolOutputChunk{
				ExecutionID: executionID,
				Stream:      stream,
				Text:        event.Line,
			}
			c.emitter.Emit(chunk)

		case runner.EventInputRequested:
			input := events.Now(events.TypeInputRequested)
			input.InputRequested = &events.InputRequested{
				ExecutionID: executionID,
				Kind:        event.InputKind,
			}
			c.emitter.Emit(input)

		case runner.EventCompleted:
			c.finish(executionID, tool, final, event.Result)
		}
	}
}

// finish parses output, writes knowledge and history, and emits the
// terminal event. History is written for every run; knowledge only for
// a clean parse.
func (c *Coordinator) finish(executionID string, tool *registry.ToolDef,
	final *command.FinalCommand, result *runner.Result) {

	record := &models.ToolExecution{
		ExecutionID:   executionID,
		ToolID:        tool.ToolID,
		Target:        final.Target,
		RawStdoutPath: result.StdoutPath,
		RawStderrPath: result.StderrPath,
		StartedAt:     result.StartedAt.UnixMilli(),
		CompletedAt:   result.EndedAt.UnixMilli(),
	}

	execErr := result.Class.Err(result.ExitCode)
	if execErr != nil {
		record.Status = models.ExecutionFailed
		record.ParseStatus = models.ParseEmptyOutput
		record.ErrorMessage = execErr.Error()
		c.persistRecord(record)

		errorEvent := events.Now(events.TypeToolError)
		errorEvent.ToolError = &events.ToolError{
			ExecutionID: executionID,
			Kind:        string(result.Class),
			Message:     execErr.Error(),
		}
		c.emitter.Emit(errorEvent)
		return
	}

	record.Status = models.ExecutionSuccess

	parseResult, parseErr := c.parseSafely(tool, final, result)
	switch {
	case parseErr != nil:
		record.Status = models.ExecutionPartial
		record.ParseStatus = models.ParseFailed
		record.ErrorMessage = fmt.Sprintf("parser error: %v", parseErr)

	case parseResult.Empty():
		record.ParseStatus = models.ParseEmptyOutput

	default:
		c.sealCredentials(parseResult.Entities)
		created, upsertErr := c.store.UpsertEntities(dao.Batch{
			Entities:      parseResult.Entities,
			Relationships: parseResult.Relationships,
		})
		if upsertErr != nil {
			record.Status = models.ExecutionPartial
			record.ParseStatus = models.ParseFailed
			record.ErrorMessage = fmt.Sprintf("knowledge write failed: %v", upsertErr)
		} else {
			record.ParseStatus = models.ParseParsed
			record.EntitiesCreated = created
		}
	}

	c.persistRecord(record)

	completed := events.Now(events.TypeToolCompleted)
	completed.ToolCompleted = &events.ToolCompleted{
		ExecutionID:     executionID,
		Status:          record.Status,
		EntitiesCreated: record.EntitiesCreated,
		StdoutPath:      record.RawStdoutPath,
		StderrPath:      record.RawStderrPath,
		DurationMs:      record.DurationMs(),
	}
	c.emitter.Emit(completed)
}

// parseSafely runs the bound parser with the raw stdout, catching
// panics so nothing escapes the parser boundary.
func (c *Coordinator) parseSafely(tool *registry.ToolDef, final *command.FinalCommand,
	result *runner.Result) (parseResult *parsers.Result, err error) {

	defer func() {
		if r := recover(); r != nil {
			parseResult, err = nil, fmt.Errorf("parser panic: %v", r)
		}
	}()

	raw, readErr := readSessionFile(result.StdoutPath)
	if readErr != nil {
		return nil, readErr
	}

	parser := c.parsers.Lookup(tool.Parser)
	return parser.Parse(raw, parsers.Context{
		ToolID: tool.ToolID,
		Target: final.Target,
		Argv:   append([]string{final.Binary}, final.Argv...),
	})
}

// sealCredentials encrypts the raw secret of any credential entity
// before it reaches the store. Entities whose secret cannot be sealed
// (no key configured) have it dropped rather than stored in the clear.
func (c *Coordinator) sealCredentials(entities []models.Entity) {
	for i := range entities {
		if entities[i].Kind != ids.KindCredential {
			continue
		}
		data, err := entities[i].DataMap()
		if err != nil {
			continue
		}
		secret, ok := data["secret"].(string)
		if !ok || secret == "" {
			continue
		}
		if c.secrets == nil {
			delete(data, "secret")
		} else if sealed, err := c.secrets.Seal(secret); err == nil {
			data["secret"] = sealed
			data["secret_sealed"] = true
		} else {
			delete(data, "secret")
		}
		_ = entities[i].SetData(data)
	}
}

func (c *Coordinator) persistRecord(record *models.ToolExecution) {
	if err := c.store.RecordExecution(record); err != nil {
		c.logger.WithError(err).WithFields(logger.Fields{
			"execution_id": record.ExecutionID,
		}).Error("Failed to record execution")
	}
}

func (c *Coordinator) recordFailure(executionID string, tool *registry.ToolDef,
	final *command.FinalCommand, err error) {

	now := nowMilli()
	record := &models.ToolExecution{
		ExecutionID:  executionID,
		ToolID:       tool.ToolID,
		Target:       final.Target,
		Status:       models.ExecutionFailed,
		ParseStatus:  models.ParseEmptyOutput,
		StartedAt:    now,
		CompletedAt:  now,
		ErrorMessage: err.Error(),
	}
	c.persistRecord(record)

	kind := "spawn_failed"
	if errors.Is(err, sentraerrors.ErrToolNotFound) {
		kind = "tool_not_found"
	}
	errorEvent := events.Now(events.TypeToolError)
	errorEvent.ToolError = &events.ToolError{
		ExecutionID: executionID,
		Kind:        kind,
		Message:     err.Error(),
	}
	c.emitter.Emit(errorEvent)
}

// Cancel terminates a running invocation. The runner's Completed event
// still fires with the cancelled class; the run is recorded as failed
// and reported on the stream as a ToolError.
func (c *Coordinator) Cancel(executionID string) error {
	c.mu.Lock()
	handle, ok := c.handles[executionID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no running execution %s", executionID)
	}
	handle.Cancel()
	return nil
}

// WriteInput forwards interactive input to a running invocation.
func (c *Coordinator) WriteInput(executionID, text string) error {
	c.mu.Lock()
	handle, ok := c.handles[executionID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no running execution %s", executionID)
	}
	return handle.WriteInput(text)
}

// PendingApprovals lists parked intents for the UI.
func (c *Coordinator) PendingApprovals() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.approvals))
	for id, pending := range c.approvals {
		out[id] = string(pending.resolved.Kind)
	}
	return out
}
