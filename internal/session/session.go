package session

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/evalscribe/evalscribe/internal/db"
	"github.com/evalscribe/evalscribe/internal/pubsub"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
)

// Generation is one end-to-end generation request with its durable
// bookkeeping: progress counters, token usage, and cost.
type Generation struct {
	ID               string
	StudentName      string
	Gender           string
	Curriculum       string
	Status           Status
	QuestionCount    int64
	CompletedCount   int64
	PromptTokens     int64
	CompletionTokens int64
	Cost             float64
	Error            string
	CreatedAt        int64
	UpdatedAt        int64
}

const (
	EventGenerationCreated pubsub.EventType = "generation_created"
	EventGenerationUpdated pubsub.EventType = "generation_updated"
	EventGenerationDeleted pubsub.EventType = "generation_deleted"
)

type CreateParams struct {
	ID            string
	StudentName   string
	Gender        string
	Curriculum    string
	QuestionCount int64
}

type Service interface {
	pubsub.Subscriber[Generation]

	Create(ctx context.Context, params CreateParams) (Generation, error)
	Get(ctx context.Context, id string) (Generation, error)
	List(ctx context.Context) ([]Generation, error)
	SetStatus(ctx context.Context, id string, status Status, errMsg string) (Generation, error)
	AddUsage(ctx context.Context, id string, promptTokens, completionTokens int64, cost float64) (Generation, error)
	IncrementCompleted(ctx context.Context, id string) (Generation, error)
	Delete(ctx context.Context, id string) error
}

type service struct {
	db     *db.Queries
	broker *pubsub.Broker[Generation]
	mu     sync.Mutex
}

var globalSessionService *service

func InitService(dbConn *sql.DB) error {
	if globalSessionService != nil {
		return fmt.Errorf("session service already initialized")
	}
	globalSessionService = &service{
		db:     db.New(dbConn),
		broker: pubsub.NewBroker[Generation](),
	}
	return nil
}

func GetService() Service {
	if globalSessionService == nil {
		panic("session service not initialized. Call session.InitService() first.")
	}
	return globalSessionService
}

func (s *service) Create(ctx context.Context, params CreateParams) (Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if params.ID == "" {
		params.ID = uuid.New().String()
	}
	dbGen, err := s.db.CreateGeneration(ctx, db.CreateGenerationParams{
		ID:            params.ID,
		StudentName:   params.StudentName,
		Gender:        params.Gender,
		Curriculum:    params.Curriculum,
		QuestionCount: params.QuestionCount,
	})
	if err != nil {
		return Generation{}, fmt.Errorf("db.CreateGeneration: %w", err)
	}

	generation := s.fromDBItem(dbGen)
	s.broker.Publish(EventGenerationCreated, generation)
	return generation, nil
}

func (s *service) Get(ctx context.Context, id string) (Generation, error) {
	dbGen, err := s.db.GetGenerationByID(ctx, id)
	if err != nil {
		return Generation{}, fmt.Errorf("db.GetGenerationByID: %w", err)
	}
	return s.fromDBItem(dbGen), nil
}

func (s *service) List(ctx context.Context) ([]Generation, error) {
	dbGens, err := s.db.ListGenerations(ctx)
	if err != nil {
		return nil, fmt.Errorf("db.ListGenerations: %w", err)
	}
	generations := make([]Generation, len(dbGens))
	for i, item := range dbGens {
		generations[i] = s.fromDBItem(item)
	}
	return generations, nil
}

func (s *service) SetStatus(ctx context.Context, id string, status Status, errMsg string) (Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.db.GetGenerationByID(ctx, id)
	if err != nil {
		return Generation{}, fmt.Errorf("db.GetGenerationByID: %w", err)
	}
	return s.update(ctx, current, func(g *db.Generation) {
		g.Status = string(status)
		g.Error = sql.NullString{String: errMsg, Valid: errMsg != ""}
	})
}

// AddUsage accumulates token and cost bookkeeping. The read-modify-write
// is guarded by the service mutex because tasks report concurrently.
func (s *service) AddUsage(ctx context.Context, id string, promptTokens, completionTokens int64, cost float64) (Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.db.GetGenerationByID(ctx, id)
	if err != nil {
		return Generation{}, fmt.Errorf("db.GetGenerationByID: %w", err)
	}
	return s.update(ctx, current, func(g *db.Generation) {
		g.PromptTokens += promptTokens
		g.CompletionTokens += completionTokens
		g.Cost += cost
	})
}

func (s *service) IncrementCompleted(ctx context.Context, id string) (Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.db.GetGenerationByID(ctx, id)
	if err != nil {
		return Generation{}, fmt.Errorf("db.GetGenerationByID: %w", err)
	}
	return s.update(ctx, current, func(g *db.Generation) {
		g.CompletedCount++
	})
}

func (s *service) update(ctx context.Context, current db.Generation, mutate func(*db.Generation)) (Generation, error) {
	mutate(&current)
	dbGen, err := s.db.UpdateGeneration(ctx, db.UpdateGenerationParams{
		ID:               current.ID,
		Status:           current.Status,
		CompletedCount:   current.CompletedCount,
		PromptTokens:     current.PromptTokens,
		CompletionTokens: current.CompletionTokens,
		Cost:             current.Cost,
		Error:            current.Error,
	})
	if err != nil {
		return Generation{}, fmt.Errorf("db.UpdateGeneration: %w", err)
	}

	generation := s.fromDBItem(dbGen)
	s.broker.Publish(EventGenerationUpdated, generation)
	return generation, nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	generation, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteGeneration(ctx, id); err != nil {
		return fmt.Errorf("db.DeleteGeneration: %w", err)
	}
	s.broker.Publish(EventGenerationDeleted, generation)
	return nil
}

func (s *service) Subscribe(ctx context.Context) <-chan pubsub.Event[Generation] {
	return s.broker.Subscribe(ctx)
}

func (s *service) fromDBItem(item db.Generation) Generation {
	return Generation{
		ID:               item.ID,
		StudentName:      item.StudentName,
		Gender:           item.Gender,
		Curriculum:       item.Curriculum,
		Status:           Status(item.Status),
		QuestionCount:    item.QuestionCount,
		CompletedCount:   item.CompletedCount,
		PromptTokens:     item.PromptTokens,
		CompletionTokens: item.CompletionTokens,
		Cost:             item.Cost,
		Error:            item.Error.String,
		CreatedAt:        item.CreatedAt,
		UpdatedAt:        item.UpdatedAt,
	}
}
