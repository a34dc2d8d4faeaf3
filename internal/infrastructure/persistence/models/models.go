package models

import "time"

// SessionModel is one assistant session in agent.db.
type SessionModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Project   string `gorm:"index;size:255"`
	Title     string `gorm:"size:512"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SessionModel) TableName() string { return "sessions" }

// TurnModel is one turn of a session. ToolCalls is a JSON array of
// {name, input, result, isError} records consumed by offline procedure
// mining.
type TurnModel struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	SessionID  string `gorm:"index:idx_turns_session;size:64;not null"`
	TurnNumber int    `gorm:"index:idx_turns_session"`
	Role       string `gorm:"size:16"`
	Content    string
	ToolCalls  string `gorm:"type:text"` // JSON
	CreatedAt  time.Time
}

func (TurnModel) TableName() string { return "turns" }

// EmbeddingModel is one vector index entry in vectors.db. Vector is a raw
// sequence of 32-bit floats; blobs whose length is not a multiple of 4 are
// rejected at the codec layer.
type EmbeddingModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	Vector     []byte `gorm:"type:blob;not null"`
	Text       string
	SourceType string `gorm:"index;size:32"`
	SourceID   string `gorm:"index;size:128"`
	Dimensions int
	Metadata   string `gorm:"type:text"` // JSON
	CreatedAt  int64  // epoch ms
}

func (EmbeddingModel) TableName() string { return "embeddings" }
