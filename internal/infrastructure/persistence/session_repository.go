package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chitragupta/chitragupta/gateway/internal/domain/entity"
	"github.com/chitragupta/chitragupta/gateway/internal/domain/smriti/vidhi"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/persistence/models"
)

// SessionRepository persists sessions and turns into agent.db. All writes
// run on the caller's goroutine; the orchestrator serializes them per turn.
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository wraps an agent database handle.
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// EnsureSession upserts the session row.
func (r *SessionRepository) EnsureSession(id, project, title string) error {
	row := models.SessionModel{ID: id, Project: project, Title: title}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "updated_at"}),
	}).Create(&row).Error
}

// AppendTurn writes one turn with its tool-call records.
func (r *SessionRepository) AppendTurn(sessionID string, turnNumber int, role, content string, calls []entity.ToolCallRecord) error {
	var callsJSON string
	if len(calls) > 0 {
		raw, err := json.Marshal(calls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
		callsJSON = string(raw)
	}
	row := models.TurnModel{
		SessionID:  sessionID,
		TurnNumber: turnNumber,
		Role:       role,
		Content:    content,
		ToolCalls:  callsJSON,
		CreatedAt:  time.Now().UTC(),
	}
	return r.db.Create(&row).Error
}

// NextTurnNumber returns the next turn index for a session.
func (r *SessionRepository) NextTurnNumber(sessionID string) (int, error) {
	var max int
	err := r.db.Model(&models.TurnModel{}).
		Where("session_id = ?", sessionID).
		Select("COALESCE(MAX(turn_number), -1)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// LoadToolCallSequences loads every session of a project as an ordered
// tool-call sequence plus the last user message before the calls — the
// input shape of the vidhi miner.
func (r *SessionRepository) LoadToolCallSequences(project string) ([]vidhi.SessionCalls, error) {
	var sessions []models.SessionModel
	if err := r.db.Where("project = ?", project).Find(&sessions).Error; err != nil {
		return nil, err
	}

	var out []vidhi.SessionCalls
	for _, s := range sessions {
		var turns []models.TurnModel
		if err := r.db.Where("session_id = ?", s.ID).
			Order("turn_number ASC").
			Find(&turns).Error; err != nil {
			return nil, err
		}

		seq := vidhi.SessionCalls{SessionID: s.ID}
		for _, turn := range turns {
			if turn.Role == "user" && turn.Content != "" {
				seq.LastUserMessage = turn.Content
			}
			if turn.ToolCalls == "" {
				continue
			}
			var records []entity.ToolCallRecord
			if err := json.Unmarshal([]byte(turn.ToolCalls), &records); err != nil {
				continue // a corrupt turn must not sink the whole mining pass
			}
			for _, rec := range records {
				seq.Calls = append(seq.Calls, vidhi.Call{
					ToolName: rec.Name,
					Args:     rec.Input,
					IsError:  rec.IsError,
				})
			}
		}
		if len(seq.Calls) > 0 {
			out = append(out, seq)
		}
	}
	return out, nil
}
