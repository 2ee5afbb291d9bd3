package asset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	r.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return r
}

func TestResolveStoresAllowedImage(t *testing.T) {
	r := newTestResolver(t)

	url, err := r.Resolve(context.Background(), "http://localhost:8080/", Upload{
		Filename:    "red kettle.png",
		ContentType: "image/png",
		Body:        strings.NewReader("png-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/uploads/red-kettle-1700000000000.png", url)

	data, err := os.ReadFile(filepath.Join(r.Dir(), "red-kettle-1700000000000.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestResolveRejectsOtherMediaTypes(t *testing.T) {
	r := newTestResolver(t)

	for _, ct := range []string{"image/gif", "application/pdf", ""} {
		_, err := r.Resolve(context.Background(), "http://h", Upload{Filename: "x", ContentType: ct, Body: strings.NewReader("x")})
		assert.ErrorIs(t, err, ErrInvalidMediaType, ct)
	}

	entries, err := os.ReadDir(r.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestResolveAvoidsNameCollisions(t *testing.T) {
	r := newTestResolver(t)

	urls, err := r.ResolveAll(context.Background(), "http://h", []Upload{
		{Filename: "a.jpg", ContentType: "image/jpg", Body: strings.NewReader("1")},
		{Filename: "a.jpg", ContentType: "image/jpg", Body: strings.NewReader("2")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"http://h/uploads/a-1700000000000.jpg",
		"http://h/uploads/a-1700000000000-1.jpg",
	}, urls)
}

func TestResolveAllRejectsBatchWithInvalidFile(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.ResolveAll(context.Background(), "http://h", []Upload{
		{Filename: "a.jpeg", ContentType: "image/jpeg", Body: strings.NewReader("1")},
		{Filename: "b.gif", ContentType: "image/gif", Body: strings.NewReader("2")},
	})
	assert.ErrorIs(t, err, ErrInvalidMediaType)

	entries, err := os.ReadDir(r.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "my-photo", sanitize("my  photo.png"))
	assert.Equal(t, "passwd", sanitize("../../etc/passwd"))
	assert.Equal(t, "evil", sanitize(`..\..\evil.jpg`))
	assert.Equal(t, "image", sanitize(""))
	assert.Equal(t, "image", sanitize(".png"))
}

func TestDiscardRemovesStoredFile(t *testing.T) {
	r := newTestResolver(t)
	url, err := r.Resolve(context.Background(), "http://localhost:8080", Upload{
		Filename:    "mug.png",
		ContentType: "image/png",
		Body:        strings.NewReader("png"),
	})
	require.NoError(t, err)

	require.NoError(t, r.Discard(url))
	entries, err := os.ReadDir(r.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Already gone or foreign URLs are ignored
	assert.NoError(t, r.Discard(url))
	assert.NoError(t, r.Discard("http://elsewhere.example/img.png"))
}
