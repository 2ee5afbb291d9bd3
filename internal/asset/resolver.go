// Package asset stores uploaded item images and turns them into URLs.
package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"catalog-service/pkg/logger"

	"go.uber.org/zap"
)

// PublicPath is the URL prefix uploaded files are served under.
const PublicPath = "/uploads"

var ErrInvalidMediaType = errors.New("invalid image type")

// allowedMediaTypes maps accepted content types to stored file extensions.
var allowedMediaTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/jpg":  "jpg",
}

// Upload is one binary file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Resolver writes uploads to a directory and returns their public URL.
type Resolver struct {
	dir string
	now func() time.Time
}

func NewResolver(dir string) (*Resolver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &Resolver{dir: dir, now: time.Now}, nil
}

// Dir is the directory files are written to.
func (r *Resolver) Dir() string { return r.dir }

// Resolve validates and stores one upload. baseURL is the scheme and host the
// file will be fetched from, e.g. "http://localhost:8080".
func (r *Resolver) Resolve(ctx context.Context, baseURL string, upload Upload) (string, error) {
	ext, ok := allowedMediaTypes[strings.ToLower(upload.ContentType)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidMediaType, upload.ContentType)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, name, err := r.create(sanitize(upload.Filename), ext)
	if err != nil {
		return "", err
	}
	path := f.Name()
	if _, err := io.Copy(f, upload.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close %s: %w", name, err)
	}

	logger.FromCtx(ctx).Debug("Stored upload", zap.String("file", name))
	return strings.TrimRight(baseURL, "/") + PublicPath + "/" + name, nil
}

// ResolveAll validates every upload before storing any of them, so a single
// bad file rejects the whole batch.
func (r *Resolver) ResolveAll(ctx context.Context, baseURL string, uploads []Upload) ([]string, error) {
	for _, u := range uploads {
		if _, ok := allowedMediaTypes[strings.ToLower(u.ContentType)]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMediaType, u.ContentType)
		}
	}
	urls := make([]string, 0, len(uploads))
	for _, u := range uploads {
		url, err := r.Resolve(ctx, baseURL, u)
		if err != nil {
			for _, stored := range urls {
				r.Discard(stored)
			}
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// Discard removes a file previously returned by Resolve. URLs that do not
// point into PublicPath are ignored.
func (r *Resolver) Discard(url string) error {
	idx := strings.LastIndex(url, PublicPath+"/")
	if idx < 0 {
		return nil
	}
	name := filepath.Base(url[idx+len(PublicPath)+1:])
	if name == "." || name == "/" || name == "" {
		return nil
	}
	if err := os.Remove(filepath.Join(r.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// create opens a new file named <base>-<unix millis>.<ext>, adding a counter
// when two uploads of the same name arrive within one millisecond.
func (r *Resolver) create(base, ext string) (*os.File, string, error) {
	stamp := strconv.FormatInt(r.now().UnixMilli(), 10)
	for attempt := 0; attempt < 100; attempt++ {
		name := fmt.Sprintf("%s-%s.%s", base, stamp, ext)
		if attempt > 0 {
			name = fmt.Sprintf("%s-%s-%d.%s", base, stamp, attempt, ext)
		}
		f, err := os.OpenFile(filepath.Join(r.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", name, err)
		}
	}
	return nil, "", fmt.Errorf("create %s-%s.%s: too many name collisions", base, stamp, ext)
}

// sanitize keeps the base name, drops the extension and replaces spaces.
func sanitize(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Join(strings.Fields(base), "-")
	if base == "" || base == "." || base == "/" {
		return "image"
	}
	return base
}
