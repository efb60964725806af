package sqlrepo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/romariotrain/newsroom/internal/broadcast/models"
)

// SaveAsset inserts the record or overwrites the one with the same natural key.
func (s *Store) SaveAsset(ctx context.Context, asset *models.GeneratedAsset) error {
	if asset == nil || asset.BroadcastID == uuid.Nil {
		return models.ErrInvalidArgument
	}
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = s.clock().UTC()
	}

	const q = `
		INSERT INTO generated_assets
			(id, broadcast_id, segment_number, section, scene_index, asset_type,
			 file_path, duration_seconds, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (broadcast_id, segment_number, section, scene_index, asset_type)
		DO UPDATE SET
			file_path = excluded.file_path,
			duration_seconds = excluded.duration_seconds,
			content_hash = excluded.content_hash,
			created_at = excluded.created_at
	`
	_, err := s.db.ExecContext(ctx, s.db.Rebind(q),
		asset.ID, asset.BroadcastID, asset.SegmentNumber, asset.Section, asset.SceneIndex, asset.Type,
		asset.FilePath, asset.DurationSeconds, asset.ContentHash, asset.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("asset save: %w", err)
	}
	return nil
}

func (s *Store) ListAssets(ctx context.Context, broadcastID uuid.UUID) ([]models.GeneratedAsset, error) {
	const q = `
		SELECT id, broadcast_id, segment_number, section, scene_index, asset_type,
			file_path, duration_seconds, content_hash, created_at
		FROM generated_assets
		WHERE broadcast_id = ?
		ORDER BY created_at ASC, id ASC
	`
	out := make([]models.GeneratedAsset, 0)
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(q), broadcastID); err != nil {
		return nil, fmt.Errorf("asset list: %w", err)
	}
	for i := range out {
		out[i].CreatedAt = out[i].CreatedAt.UTC()
	}
	return out, nil
}
