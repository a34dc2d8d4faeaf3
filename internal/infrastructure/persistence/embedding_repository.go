package persistence

import (
	"database/sql"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/persistence/models"
)

// EmbeddingRepository persists vector index entries. Reads go through gorm;
// batch writes go through the raw single-writer handle with prepared
// statements inside one transaction.
type EmbeddingRepository struct {
	db     *gorm.DB
	writer *sql.DB // nil = gorm-only mode (postgres or degraded)
}

// NewEmbeddingRepository wraps the vector handles.
func NewEmbeddingRepository(db *gorm.DB, writer *sql.DB) *EmbeddingRepository {
	return &EmbeddingRepository{db: db, writer: writer}
}

// Upsert writes one entry, replacing any previous row with the same id.
func (r *EmbeddingRepository) Upsert(row models.EmbeddingModel) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

// BatchInsert writes many entries in one transaction. With the raw writer
// available it uses a prepared INSERT OR REPLACE; otherwise it falls back to
// per-row gorm upserts.
func (r *EmbeddingRepository) BatchInsert(rows []models.EmbeddingModel) error {
	if len(rows) == 0 {
		return nil
	}
	if r.writer == nil {
		for _, row := range rows {
			if err := r.Upsert(row); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := r.writer.Begin()
	if err != nil {
		return fmt.Errorf("begin embedding batch: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO embeddings
		(id, vector, text, source_type, source_id, dimensions, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare embedding insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(row.ID, row.Vector, row.Text, row.SourceType,
			row.SourceID, row.Dimensions, row.Metadata, row.CreatedAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert embedding %s: %w", row.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteBySource removes every entry of one source id.
func (r *EmbeddingRepository) DeleteBySource(sourceID string) error {
	return r.db.Where("source_id = ?", sourceID).Delete(&models.EmbeddingModel{}).Error
}

// All streams every entry (the index scores in memory; corpus sizes are
// bounded by the compaction pipeline).
func (r *EmbeddingRepository) All() ([]models.EmbeddingModel, error) {
	var rows []models.EmbeddingModel
	if err := r.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// BySourceType returns entries of one source type.
func (r *EmbeddingRepository) BySourceType(sourceType string) ([]models.EmbeddingModel, error) {
	var rows []models.EmbeddingModel
	if err := r.db.Where("source_type = ?", sourceType).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the table size.
func (r *EmbeddingRepository) Count() (int64, error) {
	var n int64
	err := r.db.Model(&models.EmbeddingModel{}).Count(&n).Error
	return n, err
}
