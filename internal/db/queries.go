package db

import (
	"context"
	"database/sql"
)

// Queries wraps the database handle with typed accessors.
type Queries struct {
	db *sql.DB
}

func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

const generationColumns = `id, student_name, gender, curriculum, status, question_count,
	completed_count, prompt_tokens, completion_tokens, cost, error, created_at, updated_at`

type CreateGenerationParams struct {
	ID            string
	StudentName   string
	Gender        string
	Curriculum    string
	QuestionCount int64
}

func (q *Queries) CreateGeneration(ctx context.Context, arg CreateGenerationParams) (Generation, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO generations (id, student_name, gender, curriculum, question_count)
		VALUES (?, ?, ?, ?, ?)
		RETURNING `+generationColumns,
		arg.ID, arg.StudentName, arg.Gender, arg.Curriculum, arg.QuestionCount,
	)
	return scanGeneration(row)
}

func (q *Queries) GetGenerationByID(ctx context.Context, id string) (Generation, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+generationColumns+` FROM generations WHERE id = ?`, id)
	return scanGeneration(row)
}

func (q *Queries) ListGenerations(ctx context.Context) ([]Generation, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+generationColumns+` FROM generations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Generation
	for rows.Next() {
		item, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type UpdateGenerationParams struct {
	ID               string
	Status           string
	CompletedCount   int64
	PromptTokens     int64
	CompletionTokens int64
	Cost             float64
	Error            sql.NullString
}

func (q *Queries) UpdateGeneration(ctx context.Context, arg UpdateGenerationParams) (Generation, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE generations
		SET status = ?, completed_count = ?, prompt_tokens = ?, completion_tokens = ?, cost = ?, error = ?
		WHERE id = ?
		RETURNING `+generationColumns,
		arg.Status, arg.CompletedCount, arg.PromptTokens, arg.CompletionTokens, arg.Cost, arg.Error, arg.ID,
	)
	return scanGeneration(row)
}

func (q *Queries) DeleteGeneration(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM generations WHERE id = ?`, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row scanner) (Generation, error) {
	var g Generation
	err := row.Scan(
		&g.ID, &g.StudentName, &g.Gender, &g.Curriculum, &g.Status, &g.QuestionCount,
		&g.CompletedCount, &g.PromptTokens, &g.CompletionTokens, &g.Cost, &g.Error,
		&g.CreatedAt, &g.UpdatedAt,
	)
	return g, err
}

const logColumns = `id, generation_id, timestamp, level, message, attributes, created_at`

type CreateLogParams struct {
	ID           string
	GenerationID sql.NullString
	Timestamp    string
	Level        string
	Message      string
	Attributes   sql.NullString
}

func (q *Queries) CreateLog(ctx context.Context, arg CreateLogParams) (Log, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO logs (id, generation_id, timestamp, level, message, attributes)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+logColumns,
		arg.ID, arg.GenerationID, arg.Timestamp, arg.Level, arg.Message, arg.Attributes,
	)
	return scanLog(row)
}

func (q *Queries) ListLogsByGeneration(ctx context.Context, generationID sql.NullString) ([]Log, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+logColumns+` FROM logs WHERE generation_id = ? ORDER BY created_at ASC, id ASC`, generationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLogs(rows)
}

func (q *Queries) ListAllLogs(ctx context.Context, limit int64) ([]Log, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+logColumns+` FROM logs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLogs(rows)
}

func collectLogs(rows *sql.Rows) ([]Log, error) {
	var items []Log
	for rows.Next() {
		item, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanLog(row scanner) (Log, error) {
	var l Log
	err := row.Scan(&l.ID, &l.GenerationID, &l.Timestamp, &l.Level, &l.Message, &l.Attributes, &l.CreatedAt)
	return l, err
}
