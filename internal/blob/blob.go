// Package blob stores delivery artifacts. Keys are slash separated and the
// returned URL is stored verbatim on the delivery.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// Store is the artifact storage contract.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

var ErrInvalidKey = errors.New("invalid blob key")

// DeliveryKey builds the storage key for a delivery file.
func DeliveryKey(taskID, deliveryID, name string) string {
	return path.Join("deliveries", taskID, deliveryID, sanitizeName(name))
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "file"
	}
	return name
}

func cleanKey(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
