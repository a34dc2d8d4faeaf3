package persistence

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // raw handle for the vector batch writer
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/config"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/persistence/models"
)

// Manager owns the agent and vector database handles. Handles open lazily on
// first use; schema init is idempotent; the legacy JSON migration runs once
// inside the first vector-handle acquisition, so every repository returned
// afterwards sees the migrated table (readers are gated by construction
// order, no separate latch).
type Manager struct {
	cfg    config.DatabaseConfig
	home   string
	logger *zap.Logger

	mu        sync.Mutex
	agentDB   *gorm.DB
	vectorDB  *gorm.DB
	rawVector *sql.DB // mattn handle, single writer for embedding batches

	agentErrLogged  bool
	vectorErrLogged bool
	vectorReadOnly  bool
}

// NewManager creates the manager without opening anything.
func NewManager(cfg config.DatabaseConfig, smritiHome string, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		home:   smritiHome,
		logger: logger.With(zap.String("component", "persistence")),
	}
}

func (m *Manager) agentDSN() string {
	if m.cfg.AgentDSN != "" {
		return m.cfg.AgentDSN
	}
	return filepath.Join(m.home, "agent.db")
}

func (m *Manager) vectorDSN() string {
	if m.cfg.VectorDSN != "" {
		return m.cfg.VectorDSN
	}
	return filepath.Join(m.home, "vectors.db")
}

// Agent returns the agent database, opening and migrating it on first use.
func (m *Manager) Agent() (*gorm.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.agentDB != nil {
		return m.agentDB, nil
	}

	db, err := openDB(m.cfg.Type, m.agentDSN())
	if err != nil {
		m.logAgentErrOnce(err)
		return nil, err
	}
	if err := db.AutoMigrate(&models.SessionModel{}, &models.TurnModel{}); err != nil {
		m.logAgentErrOnce(err)
		return nil, fmt.Errorf("migrate agent schema: %w", err)
	}
	m.agentDB = db
	return db, nil
}

// Vector returns the vector database, opening, migrating the schema and
// running the one-shot legacy JSON import on first use.
func (m *Manager) Vector() (*gorm.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vectorLocked()
}

func (m *Manager) vectorLocked() (*gorm.DB, error) {
	if m.vectorDB != nil {
		return m.vectorDB, nil
	}

	db, err := openDB(m.cfg.Type, m.vectorDSN())
	if err != nil {
		m.logVectorErrOnce(err)
		return nil, err
	}
	if err := db.AutoMigrate(&models.EmbeddingModel{}); err != nil {
		m.logVectorErrOnce(err)
		// Schema migration failure degrades the vector DB to read-only.
		m.vectorReadOnly = true
	}
	m.vectorDB = db

	if !m.vectorReadOnly {
		if err := migrateLegacyJSON(db, m.home, m.logger); err != nil {
			m.logger.Warn("Legacy embeddings migration failed", zap.Error(err))
		}
	}
	return db, nil
}

// VectorWriter returns the raw single-writer handle used for prepared
// batch inserts into vectors.db. Only valid for the sqlite backend.
func (m *Manager) VectorWriter() (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rawVector != nil {
		return m.rawVector, nil
	}
	if m.cfg.Type != "" && m.cfg.Type != "sqlite" {
		return nil, fmt.Errorf("raw vector writer requires sqlite, have %s", m.cfg.Type)
	}

	// Ensure schema + migration ran before the writer hands out statements.
	if _, err := m.vectorLocked(); err != nil {
		return nil, err
	}

	raw, err := sql.Open("sqlite3", m.vectorDSN())
	if err != nil {
		m.logVectorErrOnce(err)
		return nil, fmt.Errorf("open raw vector handle: %w", err)
	}
	raw.SetMaxOpenConns(1) // one writer per database
	m.rawVector = raw
	return raw, nil
}

// VectorReadOnly reports whether schema migration degraded vectors.db.
func (m *Manager) VectorReadOnly() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vectorReadOnly
}

// Close closes whatever was opened.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rawVector != nil {
		_ = m.rawVector.Close()
		m.rawVector = nil
	}
	for _, db := range []*gorm.DB{m.agentDB, m.vectorDB} {
		if db == nil {
			continue
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	m.agentDB, m.vectorDB = nil, nil
}

// Persistence errors log once per process per database; afterwards the
// system continues in-memory.
func (m *Manager) logAgentErrOnce(err error) {
	if m.agentErrLogged {
		return
	}
	m.agentErrLogged = true
	m.logger.Error("Agent database unavailable, continuing in-memory", zap.Error(err))
}

func (m *Manager) logVectorErrOnce(err error) {
	if m.vectorErrLogged {
		return
	}
	m.vectorErrLogged = true
	m.logger.Error("Vector database unavailable, continuing in-memory", zap.Error(err))
}
