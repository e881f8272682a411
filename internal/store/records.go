package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type Collection string

const (
	Users    Collection = "users"
	Profiles Collection = "profile"
	Files    Collection = "files"
	Tasks    Collection = "tasks"
	Messages Collection = "messages"
)

// GlobalOwner scopes records that belong to no particular user, such as accounts.
const GlobalOwner = ""

var ErrNotFound = errors.New("record not found")

// RecordStore is key/value persistence grouped into named collections.
// Every record is addressed by (collection, owner, id); Put upserts.
type RecordStore interface {
	Get(ctx context.Context, c Collection, owner, id string) (json.RawMessage, bool, error)
	GetAll(ctx context.Context, c Collection, owner string) ([]json.RawMessage, error)
	Put(ctx context.Context, c Collection, owner, id string, value any) error
	Delete(ctx context.Context, c Collection, owner, id string) error
	Clear(ctx context.Context, c Collection, owner string) error
	Close() error
}

// TypedCollection decodes the records of one collection into T.
type TypedCollection[T any] struct {
	store RecordStore
	name  Collection
}

func NewTypedCollection[T any](rs RecordStore, name Collection) *TypedCollection[T] {
	return &TypedCollection[T]{store: rs, name: name}
}

// Get returns nil, nil when the record does not exist.
func (c *TypedCollection[T]) Get(ctx context.Context, owner, id string) (*T, error) {
	raw, ok, err := c.store.Get(ctx, c.name, owner, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", c.name, id, err)
	}
	return &v, nil
}

func (c *TypedCollection[T]) GetAll(ctx context.Context, owner string) ([]T, error) {
	raws, err := c.store.GetAll(ctx, c.name, owner)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for i, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s record %d: %w", c.name, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *TypedCollection[T]) Put(ctx context.Context, owner, id string, v *T) error {
	return c.store.Put(ctx, c.name, owner, id, v)
}

func (c *TypedCollection[T]) Delete(ctx context.Context, owner, id string) error {
	return c.store.Delete(ctx, c.name, owner, id)
}

func (c *TypedCollection[T]) Clear(ctx context.Context, owner string) error {
	return c.store.Clear(ctx, c.name, owner)
}
