package dao

import (
	"context"
)

// Service is the persistence contract shared by every entity the
// engine stores (tasks, time-log entries). Implementations decide
// durability: the engine ships an in-memory store and an afs-backed
// file store.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}
