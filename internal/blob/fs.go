package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"

	"github.com/spf13/afero"
)

// FS keeps artifacts on an afero filesystem under Root and issues URLs under BaseURL.
type FS struct {
	Fs      afero.Fs
	Root    string
	BaseURL string
}

func NewFS(root, baseURL string) FS {
	return FS{Fs: afero.NewOsFs(), Root: root, BaseURL: baseURL}
}

func (s FS) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full := path.Join(s.Root, key)
	if err := s.Fs.MkdirAll(path.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	f, err := s.Fs.Create(full)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		_ = s.Fs.Remove(full)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}
	return joinURL(s.BaseURL, key), nil
}

// Delete removes the blob. A missing blob is not an error.
func (s FS) Delete(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.Fs.Remove(path.Join(s.Root, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Handler serves stored blobs read-only.
func (s FS) Handler() http.Handler {
	return http.FileServer(afero.NewHttpFs(s.Fs).Dir(s.Root))
}
