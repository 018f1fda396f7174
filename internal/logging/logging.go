package logging

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-logfmt/logfmt"
	"github.com/google/uuid"

	"github.com/evalscribe/evalscribe/internal/db"
	"github.com/evalscribe/evalscribe/internal/pubsub"
)

type Log struct {
	ID           string
	GenerationID string
	Timestamp    time.Time
	Level        string
	Message      string
	Attributes   map[string]string
	CreatedAt    time.Time
}

const (
	EventLogCreated pubsub.EventType = "log_created"
)

type Service interface {
	pubsub.Subscriber[Log]

	Create(ctx context.Context, timestamp time.Time, level, message string, attributes map[string]string, generationID string) error
	ListByGeneration(ctx context.Context, generationID string) ([]Log, error)
	ListAll(ctx context.Context, limit int) ([]Log, error)
}

type service struct {
	db     *db.Queries
	broker *pubsub.Broker[Log]
}

var globalLoggingService *service

func InitService(dbConn *sql.DB) error {
	if globalLoggingService != nil {
		return fmt.Errorf("logging service already initialized")
	}
	globalLoggingService = &service{
		db:     db.New(dbConn),
		broker: pubsub.NewBroker[Log](),
	}
	return nil
}

func GetService() Service {
	if globalLoggingService == nil {
		panic("logging service not initialized. Call logging.InitService() first.")
	}
	return globalLoggingService
}

func (s *service) Create(ctx context.Context, timestamp time.Time, level, message string, attributes map[string]string, generationID string) error {
	if level == "" {
		level = "info"
	}

	var attributesJSON sql.NullString
	if len(attributes) > 0 {
		attributesBytes, err := json.Marshal(attributes)
		if err != nil {
			return fmt.Errorf("failed to marshal log attributes: %w", err)
		}
		attributesJSON = sql.NullString{String: string(attributesBytes), Valid: true}
	}

	dbLog, err := s.db.CreateLog(ctx, db.CreateLogParams{
		ID:           uuid.New().String(),
		GenerationID: sql.NullString{String: generationID, Valid: generationID != ""},
		Timestamp:    timestamp.UTC().Format(time.RFC3339Nano),
		Level:        level,
		Message:      message,
		Attributes:   attributesJSON,
	})
	if err != nil {
		return fmt.Errorf("db.CreateLog: %w", err)
	}

	log := s.fromDBItem(dbLog)
	s.broker.Publish(EventLogCreated, log)
	return nil
}

func (s *service) ListByGeneration(ctx context.Context, generationID string) ([]Log, error) {
	dbLogs, err := s.db.ListLogsByGeneration(ctx, sql.NullString{String: generationID, Valid: true})
	if err != nil {
		return nil, fmt.Errorf("db.ListLogsByGeneration: %w", err)
	}

	logs := make([]Log, len(dbLogs))
	for i, item := range dbLogs {
		logs[i] = s.fromDBItem(item)
	}
	return logs, nil
}

func (s *service) ListAll(ctx context.Context, limit int) ([]Log, error) {
	dbLogs, err := s.db.ListAllLogs(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("db.ListAllLogs: %w", err)
	}
	logs := make([]Log, len(dbLogs))
	for i, item := range dbLogs {
		logs[i] = s.fromDBItem(item)
	}
	return logs, nil
}

func (s *service) Subscribe(ctx context.Context) <-chan pubsub.Event[Log] {
	return s.broker.Subscribe(ctx)
}

func (s *service) fromDBItem(item db.Log) Log {
	log := Log{
		ID:           item.ID,
		GenerationID: item.GenerationID.String,
		Level:        item.Level,
		Message:      item.Message,
	}

	timestamp, err := time.Parse(time.RFC3339Nano, item.Timestamp)
	if err == nil {
		log.Timestamp = timestamp
	} else {
		log.Timestamp = time.Now()
	}
	log.CreatedAt = time.Unix(item.CreatedAt, 0)

	if item.Attributes.Valid && item.Attributes.String != "" {
		if err := json.Unmarshal([]byte(item.Attributes.String), &log.Attributes); err != nil {
			slog.Error("Failed to unmarshal log attributes", "log_id", item.ID, "error", err)
			log.Attributes = make(map[string]string)
		}
	} else {
		log.Attributes = make(map[string]string)
	}

	return log
}

func Create(ctx context.Context, timestamp time.Time, level, message string, attributes map[string]string, generationID string) error {
	return GetService().Create(ctx, timestamp, level, message, attributes, generationID)
}

func Subscribe(ctx context.Context) <-chan pubsub.Event[Log] {
	return GetService().Subscribe(ctx)
}

type slogWriter struct{}

// Write parses logfmt records produced by slog's text handler and persists
// them through the logging service.
func (sw *slogWriter) Write(p []byte) (n int, err error) {
	d := logfmt.NewDecoder(bytes.NewReader(p))
	for d.ScanRecord() {
		var timestamp time.Time
		var level string
		var message string
		var generationID string
		attributes := make(map[string]string)
		hasTimestamp := false

		for d.ScanKeyval() {
			key := string(d.Key())
			value := string(d.Value())

			switch key {
			case "time":
				parsedTime, timeErr := time.Parse(time.RFC3339Nano, value)
				if timeErr != nil {
					parsedTime, timeErr = time.Parse(time.RFC3339, value)
					if timeErr != nil {
						timestamp = time.Now().UTC()
						hasTimestamp = true
						continue
					}
				}
				timestamp = parsedTime
				hasTimestamp = true
			case "level":
				level = strings.ToLower(value)
			case "msg", "message":
				message = value
			case "generation_id":
				generationID = value
			default:
				attributes[key] = value
			}
		}
		if d.Err() != nil {
			return len(p), fmt.Errorf("logfmt.ScanRecord: %w", d.Err())
		}

		if !hasTimestamp {
			timestamp = time.Now()
		}

		// Persist in a goroutine so slog callers never block on the database.
		go func(timestamp time.Time, level, message string, attributes map[string]string, generationID string) {
			if globalLoggingService == nil {
				return
			}
			if err := Create(context.Background(), timestamp, level, message, attributes, generationID); err != nil {
				fmt.Fprintf(os.Stderr, "ERROR [logging.slogWriter]: failed to persist log: %v\n", err)
			}
		}(timestamp, level, message, attributes, generationID)
	}
	if d.Err() != nil {
		return len(p), fmt.Errorf("logfmt.ScanRecord final: %w", d.Err())
	}
	return len(p), nil
}

func NewSlogWriter() io.Writer {
	return &slogWriter{}
}

// RecoverPanic is a common function to handle panics gracefully.
// It logs the error, creates a panic log file with stack trace,
// and executes an optional cleanup function.
func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		slog.Error(fmt.Sprintf("Panic in %s: %v", name, r))

		timestamp := time.Now().Format("20060102-150405")
		filename := fmt.Sprintf("evalscribe-panic-%s-%s.log", name, timestamp)

		file, err := os.Create(filename)
		if err != nil {
			slog.Error(fmt.Sprintf("Failed to create panic log file '%s': %v", filename, err))
		} else {
			defer file.Close()
			fmt.Fprintf(file, "Panic in %s: %v\n\n", name, r)
			fmt.Fprintf(file, "Time: %s\n\n", time.Now().Format(time.RFC3339))
			fmt.Fprintf(file, "Stack Trace:\n%s\n", string(debug.Stack()))
			slog.Info(fmt.Sprintf("Panic details written to %s", filename))
		}

		if cleanup != nil {
			cleanup()
		}
	}
}
