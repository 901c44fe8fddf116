package storage

import (
	"context"
	"errors"
)

// Namespaces in the durable store
const (
	NamespaceOwners   = "owners"
	NamespaceSessions = "sessions"
)

// ErrNotFound is returned by HashStore.Get for a missing key
var ErrNotFound = errors.New("key not found")

// HashStore is a durable namespaced key/value store.
// Implementations must give read-your-writes within one process.
type HashStore interface {
	Get(ctx context.Context, namespace, key string) (string, error)
	Set(ctx context.Context, namespace, key, value string) error
	SetMany(ctx context.Context, namespace string, values map[string]string) error
	Delete(ctx context.Context, namespace, key string) (bool, error)
	GetAll(ctx context.Context, namespace string) (map[string]string, error)
}
