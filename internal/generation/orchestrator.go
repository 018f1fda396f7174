package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/evalscribe/evalscribe/internal/config"
	"github.com/evalscribe/evalscribe/internal/curriculum"
	"github.com/evalscribe/evalscribe/internal/llm/provider"
	"github.com/evalscribe/evalscribe/internal/logging"
	"github.com/evalscribe/evalscribe/internal/session"
)

var ErrGenerationBusy = errors.New("generation already running for this id")

// Request describes one end-to-end generation.
type Request struct {
	ID          string
	StudentName string
	Gender      string
	Transcript  string
	Curriculum  string
	Schema      curriculum.Schema
}

// Orchestrator fans one generation request out into per-question model
// calls under a concurrency cap and streams progress back on a single
// serialized channel.
type Orchestrator struct {
	provider provider.Provider
	registry *Registry
	sessions session.Service
	cfg      *config.Config
}

func New(p provider.Provider, sessions session.Service, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		provider: p,
		registry: NewRegistry(),
		sessions: sessions,
		cfg:      cfg,
	}
}

// Start validates the request, registers it for cancellation, and runs
// the fan-out in the background. It returns the generation ID (assigned
// when the request carries none) and the event stream. The channel is
// closed exactly once: after a done event on normal completion, or
// without one after cancellation or a fatal error.
func (o *Orchestrator) Start(ctx context.Context, req Request) (string, <-chan ProgressEvent, error) {
	if len(req.Schema) == 0 {
		return "", nil, fmt.Errorf("request has no curriculum schema")
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if !o.registry.TryRegister(req.ID) {
		return req.ID, nil, ErrGenerationBusy
	}

	items := Enumerate(req.Schema)
	if o.sessions != nil {
		if _, err := o.sessions.Create(ctx, session.CreateParams{
			ID:            req.ID,
			StudentName:   req.StudentName,
			Gender:        req.Gender,
			Curriculum:    req.Curriculum,
			QuestionCount: int64(len(items)),
		}); err != nil {
			o.registry.Clear(req.ID)
			return req.ID, nil, fmt.Errorf("create generation record: %w", err)
		}
	}

	events := make(chan ProgressEvent)
	go o.run(req, items, events)
	return req.ID, events, nil
}

// Cancel stops a running generation. Safe to call for unknown or already
// finished IDs.
func (o *Orchestrator) Cancel(generationID string) {
	o.registry.Cancel(generationID)
}

// IsActive reports whether the generation is still running.
func (o *Orchestrator) IsActive(generationID string) bool {
	return o.registry.Active(generationID)
}

func (o *Orchestrator) run(req Request, items []WorkItem, events chan ProgressEvent) {
	// The run outlives the request context on purpose: a generation
	// stops through the registry, not through a dropped HTTP connection.
	genCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer logging.RecoverPanic("generation.run", func() { close(events) })

	em := &emitter{ch: events, done: genCtx.Done()}
	acc := NewAccumulator()

	slog.Info("Generation started",
		"generation_id", req.ID,
		"items", len(items),
		"concurrency", o.cfg.Generation.Concurrency)

	var (
		wg        sync.WaitGroup
		fatal     atomic.Bool
		fatalOnce sync.Once
	)
	sem := make(chan struct{}, o.cfg.Generation.Concurrency)

	for _, item := range items {
		if o.registry.IsCanceled(req.ID) || fatal.Load() {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-genCtx.Done():
		}
		if genCtx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(item WorkItem) {
			defer wg.Done()
			defer func() { <-sem }()
			defer logging.RecoverPanic("generation.task", nil)

			t := &task{orch: o, item: item, req: req, emit: em, acc: acc}
			if err := t.run(genCtx); err != nil {
				fatalOnce.Do(func() {
					fatal.Store(true)
					em.sendFatal(ProgressEvent{
						Type:        EventError,
						UnitCode:    item.UnitCode,
						QuestionKey: item.QuestionKey,
						Message:     err.Error(),
						Fatal:       true,
					})
					o.registry.Cancel(req.ID)
					cancel()
				})
			}
		}(item)
	}

	wg.Wait()

	switch {
	case fatal.Load():
		o.setStatus(req.ID, session.StatusFailed, "provider rate limited")
	case o.registry.IsCanceled(req.ID):
		o.setStatus(req.ID, session.StatusCanceled, "")
	default:
		em.send(ProgressEvent{Type: EventDone, Results: acc.Snapshot()})
		o.setStatus(req.ID, session.StatusCompleted, "")
	}

	slog.Info("Generation finished", "generation_id", req.ID, "completed", acc.Len())
	o.registry.Clear(req.ID)
	close(events)
}

func (o *Orchestrator) setStatus(generationID string, status session.Status, errMsg string) {
	if o.sessions == nil {
		return
	}
	if _, err := o.sessions.SetStatus(context.Background(), generationID, status, errMsg); err != nil {
		slog.Error("Failed to update generation status", "generation_id", generationID, "error", err)
	}
}

func (o *Orchestrator) trackUsage(ctx context.Context, generationID string, usage provider.TokenUsage) {
	if o.sessions == nil {
		return
	}
	model := o.provider.Model()
	cost := model.CostPer1MInCached/1e6*float64(usage.CacheReadTokens) +
		model.CostPer1MIn/1e6*float64(usage.InputTokens) +
		model.CostPer1MOut/1e6*float64(usage.OutputTokens)

	if _, err := o.sessions.AddUsage(ctx, generationID, usage.InputTokens, usage.OutputTokens, cost); err != nil {
		slog.Error("Failed to record usage", "generation_id", generationID, "error", err)
	}
}

func (o *Orchestrator) incrementCompleted(ctx context.Context, generationID string) {
	if o.sessions == nil {
		return
	}
	if _, err := o.sessions.IncrementCompleted(ctx, generationID); err != nil {
		slog.Error("Failed to record completion", "generation_id", generationID, "error", err)
	}
}

// emitter serializes the event stream. All sends share one mutex so
// events never interleave mid-write, and a fatal event mutes everything
// after it.
type emitter struct {
	mu    sync.Mutex
	ch    chan<- ProgressEvent
	done  <-chan struct{}
	muted bool
}

func (e *emitter) send(event ProgressEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.muted {
		return
	}
	select {
	case e.ch <- event:
	case <-e.done:
	}
}

// sendFatal emits the event and mutes the emitter, guaranteeing nothing
// follows a fatal error on the stream.
func (e *emitter) sendFatal(event ProgressEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.muted {
		return
	}
	e.muted = true
	select {
	case e.ch <- event:
	case <-e.done:
	}
}
