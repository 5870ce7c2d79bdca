// Package chat implements the memory-augmented turn pipeline: retrieve
// relevant facts, build the augmented prompt, generate a reply, then record
// the turn and update long-term memory.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ent0n29/recall/internal/convlog"
	"github.com/ent0n29/recall/internal/memory"
	"github.com/ent0n29/recall/internal/observability"
	"github.com/ent0n29/recall/internal/policy"
	"github.com/ent0n29/recall/internal/prompt"
	"github.com/ent0n29/recall/internal/responder"
)

// ApologyReply is the fixed user-safe reply returned when generation fails.
// It is the only failure the caller ever sees as text.
const ApologyReply = "I'm sorry, I couldn't generate a response at this time. Please try again later."

// Options carries the injected tuning constants of the pipeline.
type Options struct {
	RecallLimit        int
	SearchTimeout      time.Duration
	GenerationTimeout  time.Duration
	PersistTimeout     time.Duration
	MemoryWriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.RecallLimit < 0 {
		o.RecallLimit = 0
	}
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = 2 * time.Second
	}
	if o.GenerationTimeout <= 0 {
		o.GenerationTimeout = 60 * time.Second
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 5 * time.Second
	}
	if o.MemoryWriteTimeout <= 0 {
		o.MemoryWriteTimeout = 5 * time.Second
	}
	return o
}

// TurnRequest is one incoming user message with its identity.
type TurnRequest struct {
	UserID    string
	SessionID string
	Text      string
}

// TurnResult is the caller-visible outcome of a handled turn.
type TurnResult struct {
	Reply     string
	SessionID string
	TurnID    string
	FactCount int
	Degraded  bool
}

// Orchestrator composes the memory store, conversation log and responder
// into the turn pipeline. It owns no persistent state; every mutable thing
// lives behind one of the three capabilities.
type Orchestrator struct {
	memories   memory.Store
	transcript convlog.Log
	brain      responder.Responder
	metrics    *observability.Metrics
	logger     *log.Logger
	opts       Options
}

func NewOrchestrator(
	memories memory.Store,
	transcript convlog.Log,
	brain responder.Responder,
	metrics *observability.Metrics,
	logger *log.Logger,
	opts Options,
) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		memories:   memories,
		transcript: transcript,
		brain:      brain,
		metrics:    metrics,
		logger:     logger.With("component", "orchestrator"),
		opts:       opts.withDefaults(),
	}
}

// HandleTurn runs the full pipeline for one user message. It returns an
// error only for input validation; every collaborator failure is either
// absorbed (memory, persistence) or converted into the apology reply
// (generation). The reply in a nil-error result is never empty.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	turnStart := time.Now()

	userID := strings.TrimSpace(req.UserID)
	text := strings.TrimSpace(req.Text)
	if userID == "" {
		o.metrics.TurnsTotal.WithLabelValues(observability.OutcomeRejected).Inc()
		return TurnResult{}, newFault(FaultValidation, "handle turn", errors.New("user id is required"))
	}
	if text == "" {
		o.metrics.TurnsTotal.WithLabelValues(observability.OutcomeRejected).Inc()
		return TurnResult{}, newFault(FaultValidation, "handle turn", errors.New("message text is empty"))
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	turnID := uuid.NewString()

	result := TurnResult{SessionID: sessionID, TurnID: turnID}

	// Step 1: retrieve memory. A failure here degrades context but never
	// blocks the turn beyond its own timeout budget.
	facts := o.searchMemory(ctx, text, userID, &result)
	result.FactCount = len(facts)
	o.metrics.RetrievedFacts.Observe(float64(len(facts)))

	// Step 2: build the augmented context. Pure, cannot fail.
	systemPrompt := prompt.BuildSystemPrompt(facts)

	// Step 3: generate. The one terminal step: on failure the caller gets
	// the apology and nothing is persisted or learned from this turn.
	reply, err := o.generate(ctx, responder.Request{
		UserID:       userID,
		SessionID:    sessionID,
		TurnID:       turnID,
		SystemPrompt: systemPrompt,
		UserText:     text,
	})
	if err != nil {
		o.logger.Error("generation failed", "turn_id", turnID, "session_id", sessionID, "err", err)
		o.metrics.StageFailures.WithLabelValues(observability.StageGenerate).Inc()
		o.metrics.TurnsTotal.WithLabelValues(observability.OutcomeApology).Inc()
		o.metrics.ObserveTurnStage(observability.StageTotal, time.Since(turnStart))
		result.Reply = ApologyReply
		result.Degraded = true
		return result, nil
	}
	result.Reply = reply

	// Steps 4 and 5: persist the turn and update memory. Independent,
	// issued concurrently, each best-effort behind its own timeout. The
	// reply is already computed and must reach the caller regardless.
	o.recordTurn(ctx, userID, sessionID, text, reply, &result)

	outcome := observability.OutcomeOK
	if result.Degraded {
		outcome = observability.OutcomeDegraded
	}
	o.metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	o.metrics.ObserveTurnStage(observability.StageTotal, time.Since(turnStart))

	return result, nil
}

func (o *Orchestrator) searchMemory(ctx context.Context, query, owner string, result *TurnResult) []memory.Fact {
	if o.opts.RecallLimit == 0 {
		return nil
	}

	start := time.Now()
	searchCtx, cancel := context.WithTimeout(ctx, o.opts.SearchTimeout)
	defer cancel()

	facts, err := o.memories.Search(searchCtx, query, owner, o.opts.RecallLimit)
	o.metrics.ObserveTurnStage(observability.StageSearch, time.Since(start))
	if err != nil {
		fault := newFault(FaultMemory, "search memory", err)
		o.logger.Warn("memory search failed, continuing without context", "owner", owner, "err", fault)
		o.metrics.StageFailures.WithLabelValues(observability.StageSearch).Inc()
		o.metrics.ObserveIndicator("memory_degraded")
		result.Degraded = true
		return nil
	}
	return facts
}

func (o *Orchestrator) generate(ctx context.Context, req responder.Request) (string, error) {
	start := time.Now()
	genCtx, cancel := context.WithTimeout(ctx, o.opts.GenerationTimeout)
	defer cancel()

	text, err := o.brain.Complete(genCtx, req)
	o.metrics.ObserveTurnStage(observability.StageGenerate, time.Since(start))
	if err != nil {
		return "", newFault(FaultGeneration, "complete", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", newFault(FaultGeneration, "complete", errors.New("empty reply"))
	}
	return text, nil
}

func (o *Orchestrator) recordTurn(ctx context.Context, userID, sessionID, userText, reply string, result *TurnResult) {
	// PII is masked before anything leaves the request path; the reply the
	// user sees stays untouched.
	storedUser, _ := policy.RedactPII(userText)
	storedAssistant, _ := policy.RedactPII(reply)

	// Detach from request cancellation: the caller already has a reply, and
	// a canceled request must not erase the turn from history.
	base := context.WithoutCancel(ctx)

	// Each goroutine reports into its own flag; the result is only touched
	// after both are done, so the failures stay isolated from each other.
	var persistFailed, memorizeFailed bool

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		start := time.Now()
		persistCtx, cancel := context.WithTimeout(base, o.opts.PersistTimeout)
		defer cancel()

		records := []convlog.Record{
			{SessionID: sessionID, UserID: userID, Role: convlog.RoleUser, Content: storedUser},
			{SessionID: sessionID, UserID: userID, Role: convlog.RoleAssistant, Content: storedAssistant},
		}
		for _, rec := range records {
			if _, err := o.transcript.Append(persistCtx, rec); err != nil {
				fault := newFault(FaultPersistence, "append "+rec.Role+" message", err)
				o.logger.Warn("transcript append failed", "session_id", sessionID, "err", fault)
				o.metrics.StageFailures.WithLabelValues(observability.StagePersist).Inc()
				persistFailed = true
				return
			}
		}
		o.metrics.ObserveTurnStage(observability.StagePersist, time.Since(start))
	}()

	go func() {
		defer wg.Done()
		start := time.Now()
		memCtx, cancel := context.WithTimeout(base, o.opts.MemoryWriteTimeout)
		defer cancel()

		turn := []memory.Message{
			{Role: convlog.RoleUser, Content: storedUser},
			{Role: convlog.RoleAssistant, Content: storedAssistant},
		}
		if err := o.memories.Add(memCtx, turn, userID); err != nil {
			fault := newFault(FaultMemory, "append memory", err)
			o.logger.Warn("memory update failed", "owner", userID, "err", fault)
			o.metrics.StageFailures.WithLabelValues(observability.StageMemorize).Inc()
			memorizeFailed = true
			return
		}
		o.metrics.ObserveTurnStage(observability.StageMemorize, time.Since(start))
	}()

	wg.Wait()
	if persistFailed || memorizeFailed {
		result.Degraded = true
	}
}
