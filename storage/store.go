// Package storage persists the monitor's JSON documents under logical paths.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by ReadJSON when no document exists at a path.
var ErrNotFound = errors.New("storage: document not found")

// Store reads and writes whole JSON documents addressed by slash-separated paths.
type Store interface {
	ReadJSON(ctx context.Context, path string, out any) error
	WriteJSON(ctx context.Context, path string, v any) error
	// Delete removes a document. Deleting an absent document is not an error.
	Delete(ctx context.Context, path string) error
	Close() error
}

// Load reads the document at p into a fresh T. found is false when the document is absent.
func Load[T any](ctx context.Context, s Store, p string) (value T, found bool, err error) {
	err = s.ReadJSON(ctx, p, &value)
	if errors.Is(err, ErrNotFound) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, err
	}
	return value, true, nil
}

// cleanPath validates a logical document path.
func cleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("storage: empty path")
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("storage: path %q must be relative", p)
	}
	cleaned := path.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("storage: path %q escapes the store", p)
	}
	return cleaned, nil
}

func encode(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return data, nil
}

func decode(p string, data []byte, out any) error {
	if len(data) == 0 {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", p, err)
	}
	return nil
}
