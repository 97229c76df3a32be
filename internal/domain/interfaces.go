package domain

import (
	"context"

	"docsync/internal/models"
)

// RemoteStore is the remote document store. Get returns (nil, nil) when the
// document does not exist. MergeSet must leave fields absent from doc untouched.
type RemoteStore interface {
	Get(ctx context.Context, loc models.Location) (models.SyncDocument, error)
	MergeSet(ctx context.Context, loc models.Location, doc models.SyncDocument) error
}

// LocalCache is the durable local mirror. Get returns (nil, nil) when the key
// is absent.
type LocalCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SyncService is the surface exposed to transports such as the HTTP API.
type SyncService interface {
	Pull(ctx context.Context) models.Result
	Push(ctx context.Context, data models.SyncDocument) models.Result
	Clear(ctx context.Context) models.Result
	Get(ctx context.Context) (models.SyncDocument, models.Result)
	Retry(ctx context.Context) models.Result
	Status() models.SyncStatus
}
