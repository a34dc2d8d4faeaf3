package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/persistence/models"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/vectorstore/codec"
)

// legacyEntry is the pre-SQLite embeddings.json record shape.
type legacyEntry struct {
	ID         string          `json:"id"`
	Vector     []float32       `json:"vector"`
	Text       string          `json:"text"`
	SourceType string          `json:"source"`
	SourceID   string          `json:"sourceId"`
	Metadata   json.RawMessage `json:"metadata"`
	CreatedAt  int64           `json:"createdAt"`
}

// migrateLegacyJSON imports embeddings.json into the embeddings table with
// insert-or-ignore semantics, then renames the file to .bak. Safe under
// repeated calls: a missing file is a no-op and re-imports ignore existing
// ids.
func migrateLegacyJSON(db *gorm.DB, home string, logger *zap.Logger) error {
	path := filepath.Join(home, "embeddings.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var entries []legacyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	imported := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			row := models.EmbeddingModel{
				ID:         e.ID,
				Vector:     codec.Encode(e.Vector),
				Text:       e.Text,
				SourceType: e.SourceType,
				SourceID:   e.SourceID,
				Dimensions: len(e.Vector),
				Metadata:   string(e.Metadata),
				CreatedAt:  e.CreatedAt,
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return res.Error
			}
			imported += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := os.Rename(path, path+".bak"); err != nil {
		return err
	}
	logger.Info("Migrated legacy embeddings.json",
		zap.Int("entries", len(entries)),
		zap.Int("imported", imported),
	)
	return nil
}
