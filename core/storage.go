package core

import "context"

// KeyValueStore is the client-scoped key-value storage backing local profiles and login preferences.
// It mirrors the browser's localStorage: string keys, string values, absent keys are not an error.
type KeyValueStore interface {
	// GetItem returns the value stored under key; ok is false if there is none.
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	// RemoveItem deletes the keys; missing keys are ignored.
	RemoveItem(ctx context.Context, keys ...string) error
}
