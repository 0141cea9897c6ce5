package importer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelport/channelport-api/internal/models"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	return NewResolver(t.TempDir(), t.TempDir(), 5*time.Second, zerolog.Nop())
}

func TestResolveFile(t *testing.T) {
	r := newTestResolver(t)
	require.NoError(t, os.WriteFile(filepath.Join(r.uploadDir, "feed.csv"), []byte("sku\n"), 0o600))

	path, temporary, err := r.Resolve(context.Background(), models.SourceTypeFile, "feed.csv")
	require.NoError(t, err)
	assert.False(t, temporary)
	assert.Equal(t, filepath.Join(r.uploadDir, "feed.csv"), path)
}

func TestResolveFileRejectsTraversal(t *testing.T) {
	r := newTestResolver(t)

	for _, location := range []string{"../etc/passwd", "/etc/passwd"} {
		_, _, err := r.Resolve(context.Background(), models.SourceTypeFile, location)
		assert.ErrorIs(t, err, ErrSourceUnavailable, location)
	}
}

func TestResolveFileMissing(t *testing.T) {
	r := newTestResolver(t)

	_, _, err := r.Resolve(context.Background(), models.SourceTypeFile, "nope.csv")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestResolveURLDownloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("sku,name\nA-1,Widget\n"))
	}))
	defer srv.Close()

	r := newTestResolver(t)
	path, temporary, err := r.Resolve(context.Background(), models.SourceTypeURL, srv.URL)
	require.NoError(t, err)
	assert.True(t, temporary)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "A-1")

	r.Cleanup(path, temporary)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestResolveURLErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := newTestResolver(t)
	_, _, err := r.Resolve(context.Background(), models.SourceTypeAPI, srv.URL)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestCleanupKeepsPermanentFiles(t *testing.T) {
	r := newTestResolver(t)
	path := filepath.Join(r.uploadDir, "keep.csv")
	require.NoError(t, os.WriteFile(path, []byte("sku\n"), 0o600))

	r.Cleanup(path, false)
	_, err := os.Stat(path)
	assert.NoError(t, err)
}
