package db

import "database/sql"

type Generation struct {
	ID               string
	StudentName      string
	Gender           string
	Curriculum       string
	Status           string
	QuestionCount    int64
	CompletedCount   int64
	PromptTokens     int64
	CompletionTokens int64
	Cost             float64
	Error            sql.NullString
	CreatedAt        int64
	UpdatedAt        int64
}

type Log struct {
	ID           string
	GenerationID sql.NullString
	Timestamp    string
	Level        string
	Message      string
	Attributes   sql.NullString
	CreatedAt    int64
}
