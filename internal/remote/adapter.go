// Package remote defines the backend boundary of the sync engine and an
// HTTP/JSON implementation of it.
package remote

import (
	"context"

	"github.com/roach88/shiksha/internal/model"
)

// ManifestEntry is one line of the catalog manifest: the newest version the
// backend holds for an entry.
type ManifestEntry struct {
	EntryID string `json:"entry_id"`
	Version int64  `json:"version"`
}

// Adapter is the backend API. Any transport may implement it.
//
// UploadProgress returns nil on acknowledgement. Rejections are *model.Error
// values with code PERMANENT_REJECTION or TRANSIENT_NETWORK. Implementations
// must treat a repeated item.ID as a no-op, since the scheduler delivers at
// least once.
type Adapter interface {
	UploadProgress(ctx context.Context, item model.OutboxItem) error
	FetchCatalogManifest(ctx context.Context, subjects []string) ([]ManifestEntry, error)
	FetchCatalogEntries(ctx context.Context, ids []string) ([]model.CatalogEntry, error)
	FetchCurriculum(ctx context.Context, subject string, classLevel int, topic string) (model.CurriculumRecord, error)
	FetchAsset(ctx context.Context, assetID string) ([]byte, error)
}
