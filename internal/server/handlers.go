package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/evalscribe/evalscribe/internal/generation"
	"github.com/evalscribe/evalscribe/internal/version"
)

type startGenerationRequest struct {
	ID          string `json:"id,omitempty"`
	StudentName string `json:"student_name"`
	Gender      string `json:"gender,omitempty"`
	Curriculum  string `json:"curriculum"`
	Transcript  string `json:"transcript"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleListCurricula(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"curricula": s.curricula.Names()})
}

// handleStartGeneration kicks off a generation and streams its progress
// events over SSE until the stream closes. Disconnecting cancels the run.
func (s *Server) handleStartGeneration(c echo.Context) error {
	var req startGenerationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.StudentName == "" || req.Curriculum == "" || req.Transcript == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "student_name, curriculum and transcript are required"})
	}

	schema, ok := s.curricula.Get(req.Curriculum)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown curriculum %q", req.Curriculum)})
	}

	genID, events, err := s.orch.Start(c.Request().Context(), generation.Request{
		ID:          req.ID,
		StudentName: req.StudentName,
		Gender:      req.Gender,
		Transcript:  req.Transcript,
		Curriculum:  req.Curriculum,
		Schema:      schema,
	})
	if err != nil {
		if errors.Is(err, generation.ErrGenerationBusy) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	c.Response().Header().Set("X-Generation-Id", genID)
	startSSE(c)

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			s.orch.Cancel(genID)
			// Drain so the run's emitter never blocks on a dead client.
			for range events {
			}
			return nil

		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeSSEFrame(c, string(event.Type), event); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				s.orch.Cancel(genID)
				for range events {
				}
				return err
			}
		}
	}
}

// handleWatchGenerations streams generation record updates over SSE.
// Every create, progress update, and status change published by the
// session service reaches each connected watcher.
func (s *Server) handleWatchGenerations(c echo.Context) error {
	ctx := c.Request().Context()
	sub := s.sessions.Subscribe(ctx)
	startSSE(c)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub:
			if !ok {
				return nil
			}
			if err := writeSSEFrame(c, string(event.Type), event.Payload); err != nil {
				return err
			}
		}
	}
}

// handleStreamGenerationLogs streams one generation's log rows over SSE
// as they are written, the live counterpart of the one-shot logs list.
func (s *Server) handleStreamGenerationLogs(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	sub := s.logs.Subscribe(ctx)
	startSSE(c)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub:
			if !ok {
				return nil
			}
			if event.Payload.GenerationID != id {
				continue
			}
			if err := writeSSEFrame(c, string(event.Type), event.Payload); err != nil {
				return err
			}
		}
	}
}

// startSSE commits the response as an event stream.
func startSSE(c echo.Context) {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	if flusher, ok := c.Response().Writer.(http.Flusher); ok {
		flusher.Flush()
	}
}

// writeSSEFrame writes one frame as "event: <type>\ndata: <json>\n\n".
func writeSSEFrame(c echo.Context, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(c.Response().Writer, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return err
	}
	if flusher, ok := c.Response().Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func (s *Server) handleListGenerations(c echo.Context) error {
	generations, err := s.sessions.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"generations": generations})
}

func (s *Server) handleGetGeneration(c echo.Context) error {
	gen, err := s.sessions.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "generation not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, gen)
}

func (s *Server) handleGetGenerationLogs(c echo.Context) error {
	logs, err := s.logs.ListByGeneration(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"logs": logs})
}

// handleCancelGeneration requests cancellation. Returns 202 whether or
// not the generation was still running; cancel is idempotent.
func (s *Server) handleCancelGeneration(c echo.Context) error {
	id := c.Param("id")
	s.orch.Cancel(id)
	return c.JSON(http.StatusAccepted, map[string]string{"id": id, "status": "cancel_requested"})
}
