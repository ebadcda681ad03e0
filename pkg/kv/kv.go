// Package kv is the device's local persistence layer: a small key-value
// store with hierarchical keys, backed by BadgerDB on flash and by a map
// in tests. The conversation cache keys records as
// ["conv", <timestamp>, <id>] so a prefix scan replays them in order.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound reports a missing key.
var ErrNotFound = errors.New("kv: not found")

// Separator joins key segments in the encoded form. Segments must not
// contain it.
const Separator = ":"

// Key is a hierarchical key as path segments.
type Key []string

// String returns the encoded form, mainly for logs.
func (k Key) String() string {
	return strings.Join(k, Separator)
}

// encode returns the stored byte form of the key.
func (k Key) encode() []byte {
	return []byte(strings.Join(k, Separator))
}

// decodeKey splits a stored key back into segments.
func decodeKey(b []byte) Key {
	return Key(strings.Split(string(b), Separator))
}

// scanPrefix returns the byte prefix matching all children of k. An empty
// key matches everything; otherwise the separator is appended so that
// ["a","b"] does not match ["a","bc"].
func scanPrefix(k Key) []byte {
	if len(k) == 0 {
		return nil
	}
	return []byte(strings.Join(k, Separator) + Separator)
}

// Entry is one stored record.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the persistence contract shared by the Badger and Memory
// backends.
type Store interface {
	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set writes one record, replacing any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error

	// List iterates the children of prefix in lexicographic key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchSet writes several records in one transaction.
	BatchSet(ctx context.Context, entries []Entry) error

	// BatchDelete removes several keys in one transaction.
	BatchDelete(ctx context.Context, keys []Key) error

	Close() error
}
