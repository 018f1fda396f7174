package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/evalscribe/evalscribe/internal/llm/provider"
)

// placeholder fills result fields the model failed to return so the final
// document never renders an empty cell.
const placeholder = "-"

// task runs one work item end to end: prompt, bounded retries, decode,
// accumulate. A nil return means the item is settled (completed or
// skipped); a non-nil return is a fatal error that stops the whole
// generation.
type task struct {
	orch *Orchestrator
	item WorkItem
	req  Request
	emit *emitter
	acc  *Accumulator
}

func (t *task) run(ctx context.Context) error {
	genID := t.req.ID
	if t.orch.registry.IsCanceled(genID) {
		return nil
	}

	t.emit.send(ProgressEvent{
		Type:        EventProcessing,
		UnitCode:    t.item.UnitCode,
		QuestionKey: t.item.QuestionKey,
	})

	if !t.item.Spec.HasCriteria() && t.item.Spec.ExampleAnswer == "" {
		t.emit.send(ProgressEvent{
			Type:        EventError,
			UnitCode:    t.item.UnitCode,
			QuestionKey: t.item.QuestionKey,
			Message:     "question has neither benchmark criteria nor an example answer",
		})
		return nil
	}

	schema := buildResponseSchema(t.item)
	prompt := buildPrompt(t.item, t.req.StudentName, t.req.Gender, t.req.Transcript)

	resp, err := t.callModel(ctx, provider.Request{
		Prompt:         prompt,
		ResponseSchema: schema,
		Temperature:    t.orch.cfg.Provider.Temperature,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || t.orch.registry.IsCanceled(genID) {
			return nil
		}
		if provider.IsRateLimit(err) {
			return err
		}
		t.emit.send(ProgressEvent{
			Type:        EventError,
			UnitCode:    t.item.UnitCode,
			QuestionKey: t.item.QuestionKey,
			Message:     err.Error(),
		})
		return nil
	}

	t.emit.send(ProgressEvent{
		Type:         EventTokenUsage,
		Section:      t.item.UnitCode + "/" + t.item.QuestionKey,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	})
	t.orch.trackUsage(ctx, genID, resp.Usage)

	result, err := t.decode(resp.Content)
	if err != nil {
		t.emit.send(ProgressEvent{
			Type:        EventError,
			UnitCode:    t.item.UnitCode,
			QuestionKey: t.item.QuestionKey,
			Message:     fmt.Sprintf("malformed model response: %v", err),
		})
		return nil
	}

	if !t.acc.Add(t.item.UnitCode, t.item.QuestionKey, result) {
		slog.Warn("Duplicate result dropped", "unit", t.item.UnitCode, "question", t.item.QuestionKey)
		return nil
	}
	t.orch.incrementCompleted(ctx, genID)

	t.emit.send(ProgressEvent{
		Type:        EventCompleted,
		UnitCode:    t.item.UnitCode,
		QuestionKey: t.item.QuestionKey,
		Result:      result,
	})
	return nil
}

// callModel wraps one logical model call in the retry policy. One abort
// handle in the registry covers the whole call, backoff delays included,
// so a cancel reaches calls already on the wire and never waits out the
// sleep between attempts.
func (t *task) callModel(ctx context.Context, req provider.Request) (*provider.Response, error) {
	genID := t.req.ID
	cfg := t.orch.cfg.Generation

	callCtx, abort := context.WithCancel(ctx)
	handleID := uuid.New().String()
	t.orch.registry.AddHandle(genID, handleID, abort)
	defer func() {
		t.orch.registry.RemoveHandle(genID, handleID)
		abort()
	}()

	var resp *provider.Response
	attempt := 0

	err := withRetry(callCtx, cfg, func(ctx context.Context) error {
		attempt++
		if t.orch.registry.IsCanceled(genID) {
			return context.Canceled
		}
		if attempt > 1 {
			t.emit.send(ProgressEvent{
				Type:        EventRetry,
				UnitCode:    t.item.UnitCode,
				QuestionKey: t.item.QuestionKey,
				Attempt:     attempt,
			})
		}

		attemptCtx, cancelTimeout := context.WithTimeout(ctx, cfg.AttemptTimeout)
		defer cancelTimeout()

		r, err := collect(attemptCtx, t.orch.provider.Generate(attemptCtx, req))
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				return context.Canceled
			case provider.IsRateLimit(err):
				return err
			case provider.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded):
				return retryableError(err)
			default:
				return err
			}
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// collect drains one provider call's event channel down to its terminal
// response or error. A stream cut short by cancellation may close without
// a terminal event, in which case the context error wins.
func collect(ctx context.Context, events <-chan provider.Event) (*provider.Response, error) {
	for event := range events {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		switch event.Type {
		case provider.EventError:
			return nil, event.Error
		case provider.EventComplete:
			return event.Response, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("provider stream closed without a terminal event")
}

// decode extracts the JSON object from the raw model text and shapes it
// into a QuestionResult. Models occasionally wrap the object in prose or
// code fences, so everything outside the outermost braces is ignored.
func (t *task) decode(content string) (*QuestionResult, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(content[start:end+1]), &fields); err != nil {
		return nil, err
	}

	result := &QuestionResult{
		MainQuestion: t.item.Spec.MainQuestion,
		Conclusion:   stringField(fields, "conclusion"),
	}

	if t.item.Spec.HasCriteria() {
		nums := make([]string, 0, len(t.item.Spec.Criteria))
		for num := range t.item.Spec.Criteria {
			nums = append(nums, num)
		}
		sort.Strings(nums)
		for _, num := range nums {
			result.Findings = append(result.Findings, CriterionFinding{
				Criterion: t.item.Spec.Criteria[num],
				Evidence:  stringField(fields, "evidence_"+num),
				Rating:    stringField(fields, "rating_"+num),
			})
		}
	} else {
		result.Answer = stringField(fields, "answer")
	}
	return result, nil
}

func stringField(fields map[string]any, key string) string {
	value, ok := fields[key]
	if !ok {
		return placeholder
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Sprintf("%v", value)
	}
	if s == "" {
		return placeholder
	}
	return s
}
