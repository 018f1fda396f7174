package generation

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalscribe/evalscribe/internal/config"
	"github.com/evalscribe/evalscribe/internal/curriculum"
	"github.com/evalscribe/evalscribe/internal/llm/models"
	"github.com/evalscribe/evalscribe/internal/llm/provider"
)

// stubProvider runs one callback per Generate call.
type stubProvider struct {
	fn func(ctx context.Context, req provider.Request) provider.Event
}

func (s *stubProvider) Model() models.Model {
	return models.Model{ID: "stub", Provider: models.ProviderMock, CostPer1MIn: 1, CostPer1MOut: 2}
}

func (s *stubProvider) MaxTokens() int64 { return 1024 }

func (s *stubProvider) Generate(ctx context.Context, req provider.Request) <-chan provider.Event {
	ch := make(chan provider.Event, 1)
	go func() {
		defer close(ch)
		ch <- s.fn(ctx, req)
	}()
	return ch
}

func successEvent(req provider.Request) provider.Event {
	fields := make(map[string]string, len(req.ResponseSchema))
	for key := range req.ResponseSchema {
		fields[key] = "response for " + key
	}
	data, _ := json.Marshal(fields)
	return provider.Event{
		Type: provider.EventComplete,
		Response: &provider.Response{
			Content: string(data),
			Usage:   provider.TokenUsage{InputTokens: 10, OutputTokens: 5},
		},
	}
}

func testSchema(units, questionsPerUnit int) curriculum.Schema {
	schema := make(curriculum.Schema)
	for u := 0; u < units; u++ {
		unitCode := string(rune('A'+u)) + "101"
		questions := make(map[string]curriculum.QuestionSpec)
		for q := 0; q < questionsPerUnit; q++ {
			key := "q" + string(rune('1'+q))
			questions[key] = curriculum.QuestionSpec{
				MainQuestion: "Explain the procedure",
				Criteria:     map[string]string{"1": "names the steps", "2": "states the safety rule"},
			}
		}
		schema[unitCode] = curriculum.Unit{AssessmentGuide: "general guide", Questions: questions}
	}
	return schema
}

func testConfig(concurrency int) *config.Config {
	return &config.Config{
		Provider: config.ProviderConfig{Temperature: 0.2},
		Generation: config.GenerationConfig{
			Concurrency:    concurrency,
			MaxAttempts:    3,
			RetryDelay:     time.Millisecond,
			AttemptTimeout: 5 * time.Second,
		},
	}
}

func collectEvents(t *testing.T, events <-chan ProgressEvent) []ProgressEvent {
	t.Helper()
	var all []ProgressEvent
	timeout := time.After(10 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return all
			}
			all = append(all, event)
		case <-timeout:
			t.Fatal("timeout waiting for event stream to close")
		}
	}
}

func eventsOfType(events []ProgressEvent, eventType EventType) []ProgressEvent {
	var out []ProgressEvent
	for _, event := range events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func TestOrchestratorCompleteness(t *testing.T) {
	t.Parallel()

	p := &stubProvider{fn: func(ctx context.Context, req provider.Request) provider.Event {
		return successEvent(req)
	}}
	orch := New(p, nil, testConfig(3))

	schema := testSchema(2, 3)
	_, events, err := orch.Start(context.Background(), Request{
		StudentName: "Alex Doe",
		Transcript:  "transcript text",
		Schema:      schema,
	})
	require.NoError(t, err)

	all := collectEvents(t, events)

	done := eventsOfType(all, EventDone)
	require.Len(t, done, 1, "exactly one done event")
	assert.Equal(t, all[len(all)-1].Type, EventDone, "done is the last event")

	results := done[0].Results
	total := 0
	for _, unit := range results {
		total += len(unit)
	}
	assert.Equal(t, 6, total)
	assert.Len(t, eventsOfType(all, EventCompleted), 6)
	assert.Len(t, eventsOfType(all, EventProcessing), 6)
	assert.Empty(t, eventsOfType(all, EventError))

	for _, unit := range results {
		for _, result := range unit {
			assert.Equal(t, "Explain the procedure", result.MainQuestion)
			assert.Len(t, result.Findings, 2)
		}
	}
}

func TestOrchestratorConcurrencyBound(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int64
	p := &stubProvider{fn: func(ctx context.Context, req provider.Request) provider.Event {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if current <= old || peak.CompareAndSwap(old, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return successEvent(req)
	}}
	orch := New(p, nil, testConfig(2))

	_, events, err := orch.Start(context.Background(), Request{
		StudentName: "Alex Doe",
		Transcript:  "transcript",
		Schema:      testSchema(3, 3),
	})
	require.NoError(t, err)

	all := collectEvents(t, events)
	require.Len(t, eventsOfType(all, EventDone), 1)
	assert.LessOrEqual(t, peak.Load(), int64(2), "in-flight calls must respect the concurrency cap")
}

func TestOrchestratorPartialFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	p := &stubProvider{fn: func(ctx context.Context, req provider.Request) provider.Event {
		// Every third call fails permanently.
		if calls.Add(1)%3 == 0 {
			return provider.Event{Type: provider.EventError, Error: &provider.ProviderError{
				Provider: "stub", StatusCode: 400, Message: "bad request", Retryable: false,
			}}
		}
		return successEvent(req)
	}}
	cfg := testConfig(1) // serial so the failing calls are deterministic
	orch := New(p, nil, cfg)

	_, events, err := orch.Start(context.Background(), Request{
		StudentName: "Alex Doe",
		Transcript:  "transcript",
		Schema:      testSchema(3, 3),
	})
	require.NoError(t, err)

	all := collectEvents(t, events)

	done := eventsOfType(all, EventDone)
	require.Len(t, done, 1, "partial failure still completes with a done event")

	errs := eventsOfType(all, EventError)
	assert.Len(t, errs, 3)
	for _, e := range errs {
		assert.False(t, e.Fatal)
	}

	total := 0
	for _, unit := range done[0].Results {
		total += len(unit)
	}
	assert.Equal(t, 6, total, "failed items never appear in the result map")
	assert.Len(t, eventsOfType(all, EventCompleted), 6)
}

func TestOrchestratorRateLimitIsFatal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	p := &stubProvider{fn: func(ctx context.Context, req provider.Request) provider.Event {
		if calls.Add(1) == 2 {
			return provider.Event{Type: provider.EventError, Error: &provider.RateLimitError{
				Provider: "stub", Message: "quota exceeded",
			}}
		}
		return successEvent(req)
	}}
	orch := New(p, nil, testConfig(1))

	_, events, err := orch.Start(context.Background(), Request{
		StudentName: "Alex Doe",
		Transcript:  "transcript",
		Schema:      testSchema(2, 3),
	})
	require.NoError(t, err)

	all := collectEvents(t, events)

	assert.Empty(t, eventsOfType(all, EventDone), "no done event after a fatal error")
	fatal := eventsOfType(all, EventError)
	require.Len(t, fatal, 1)
	assert.True(t, fatal[0].Fatal)
	assert.Equal(t, EventError, all[len(all)-1].Type, "fatal error is the final event on the stream")
}

func TestOrchestratorCancellation(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 16)
	p := &stubProvider{fn: func(ctx context.Context, req provider.Request) provider.Event {
		started <- struct{}{}
		<-ctx.Done()
		return provider.Event{Type: provider.EventError, Error: ctx.Err()}
	}}
	orch := New(p, nil, testConfig(2))

	genID, events, err := orch.Start(context.Background(), Request{
		StudentName: "Alex Doe",
		Transcript:  "transcript",
		Schema:      testSchema(2, 3),
	})
	require.NoError(t, err)

	var all []ProgressEvent
	go func() {
		<-started
		orch.Cancel(genID)
	}()
	all = collectEvents(t, events)

	assert.Empty(t, eventsOfType(all, EventDone), "canceled runs close without a done event")
	assert.Empty(t, eventsOfType(all, EventCompleted))
	assert.False(t, orch.IsActive(genID))
}

func TestOrchestratorRetryBookkeeping(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	p := &stubProvider{fn: func(ctx context.Context, req provider.Request) provider.Event {
		// First two attempts fail with a retryable error, third succeeds.
		if calls.Add(1) <= 2 {
			return provider.Event{Type: provider.EventError, Error: &provider.ProviderError{
				Provider: "stub", StatusCode: 503, Message: "overloaded", Retryable: true,
			}}
		}
		return successEvent(req)
	}}
	orch := New(p, nil, testConfig(1))

	_, events, err := orch.Start(context.Background(), Request{
		StudentName: "Alex Doe",
		Transcript:  "transcript",
		Schema:      testSchema(1, 1),
	})
	require.NoError(t, err)

	all := collectEvents(t, events)

	retries := eventsOfType(all, EventRetry)
	require.Len(t, retries, 2)
	assert.Equal(t, 2, retries[0].Attempt)
	assert.Equal(t, 3, retries[1].Attempt)
	assert.Len(t, eventsOfType(all, EventCompleted), 1)
	require.Len(t, eventsOfType(all, EventDone), 1)
}

func TestOrchestratorRetryExhaustion(t *testing.T) {
	t.Parallel()

	p := &stubProvider{fn: func(ctx context.Context, req provider.Request) provider.Event {
		return provider.Event{Type: provider.EventError, Error: &provider.ProviderError{
			Provider: "stub", StatusCode: 503, Message: "overloaded", Retryable: true,
		}}
	}}
	orch := New(p, nil, testConfig(1))

	_, events, err := orch.Start(context.Background(), Request{
		StudentName: "Alex Doe",
		Transcript:  "transcript",
		Schema:      testSchema(1, 1),
	})
	require.NoError(t, err)

	all := collectEvents(t, events)

	assert.Len(t, eventsOfType(all, EventRetry), 2, "three attempts means two retry events")
	errs := eventsOfType(all, EventError)
	require.Len(t, errs, 1)
	assert.False(t, errs[0].Fatal, "an exhausted item fails alone, not the whole run")
	require.Len(t, eventsOfType(all, EventDone), 1)
	assert.Empty(t, eventsOfType(all, EventDone)[0].Results["A101"])
}

func TestOrchestratorHoldsIDWhileWindingDown(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 16)
	release := make(chan struct{})
	p := &stubProvider{fn: func(ctx context.Context, req provider.Request) provider.Event {
		started <- struct{}{}
		<-release
		return successEvent(req)
	}}
	orch := New(p, nil, testConfig(1))

	genID, events, err := orch.Start(context.Background(), Request{
		ID:          "fixed-id",
		StudentName: "Alex Doe",
		Transcript:  "transcript",
		Schema:      testSchema(1, 1),
	})
	require.NoError(t, err)
	<-started
	orch.Cancel(genID)

	// The canceled run has not closed its stream yet, so the ID is
	// still owned and a replacement must be refused.
	_, _, err = orch.Start(context.Background(), Request{
		ID:          "fixed-id",
		StudentName: "Alex Doe",
		Transcript:  "transcript",
		Schema:      testSchema(1, 1),
	})
	assert.ErrorIs(t, err, ErrGenerationBusy)

	close(release)
	collectEvents(t, events)

	_, events, err = orch.Start(context.Background(), Request{
		ID:          "fixed-id",
		StudentName: "Alex Doe",
		Transcript:  "transcript",
		Schema:      testSchema(1, 1),
	})
	require.NoError(t, err, "the ID frees up once the old run has wound down")
	all := collectEvents(t, events)
	require.Len(t, eventsOfType(all, EventDone), 1)
}

func TestOrchestratorRejectsEmptySchema(t *testing.T) {
	t.Parallel()

	orch := New(&stubProvider{}, nil, testConfig(1))
	_, _, err := orch.Start(context.Background(), Request{StudentName: "Alex Doe"})
	assert.Error(t, err)
}

func TestOrchestratorRejectsDuplicateRun(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	p := &stubProvider{fn: func(ctx context.Context, req provider.Request) provider.Event {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return successEvent(req)
	}}
	orch := New(p, nil, testConfig(1))

	genID, events, err := orch.Start(context.Background(), Request{
		ID:          "fixed-id",
		StudentName: "Alex Doe",
		Transcript:  "transcript",
		Schema:      testSchema(1, 1),
	})
	require.NoError(t, err)
	require.Equal(t, "fixed-id", genID)

	_, _, err = orch.Start(context.Background(), Request{
		ID:          "fixed-id",
		StudentName: "Alex Doe",
		Transcript:  "transcript",
		Schema:      testSchema(1, 1),
	})
	assert.ErrorIs(t, err, ErrGenerationBusy)

	close(release)
	collectEvents(t, events)
}
