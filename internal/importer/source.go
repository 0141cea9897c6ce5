package importer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/channelport/channelport-api/internal/models"
)

// ErrSourceUnavailable marks a source that could not be resolved to a local
// readable file (unreachable URL, missing upload).
var ErrSourceUnavailable = errors.New("importer: source unavailable")

// Resolver turns a task's abstract source descriptor into a local readable
// path. When the returned path is temporary the caller owns its deletion.
type Resolver struct {
	client    *http.Client
	uploadDir string
	tempDir   string
	logger    zerolog.Logger
}

func NewResolver(uploadDir, tempDir string, fetchTimeout time.Duration, logger zerolog.Logger) *Resolver {
	if fetchTimeout <= 0 {
		fetchTimeout = 60 * time.Second
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Resolver{
		client:    &http.Client{Timeout: fetchTimeout},
		uploadDir: uploadDir,
		tempDir:   tempDir,
		logger:    logger.With().Str("component", "source_resolver").Logger(),
	}
}

// Resolve produces a local path for the source plus a flag indicating
// whether the path is a temporary artifact the caller must delete.
func (r *Resolver) Resolve(ctx context.Context, sourceType models.SourceType, location string) (string, bool, error) {
	switch sourceType {
	case models.SourceTypeFile:
		return r.resolveFile(location)
	case models.SourceTypeURL, models.SourceTypeAPI:
		return r.download(ctx, location)
	default:
		return "", false, errors.Errorf("importer: unknown source type %q", sourceType)
	}
}

func (r *Resolver) resolveFile(location string) (string, bool, error) {
	// Uploads are addressed relative to the upload dir; absolute paths and
	// traversal are rejected.
	clean := filepath.Clean(location)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", false, errors.Wrapf(ErrSourceUnavailable, "invalid upload path %q", location)
	}
	path := filepath.Join(r.uploadDir, clean)
	if _, err := os.Stat(path); err != nil {
		return "", false, errors.Wrapf(ErrSourceUnavailable, "upload %q: %v", location, err)
	}
	return path, false, nil
}

func (r *Resolver) download(ctx context.Context, rawURL string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", false, errors.Wrapf(ErrSourceUnavailable, "invalid source url: %v", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", false, errors.Wrapf(ErrSourceUnavailable, "fetch %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", false, errors.Wrapf(ErrSourceUnavailable, "fetch %s: status %d", rawURL, resp.StatusCode)
	}

	tmpName := filepath.Join(r.tempDir, fmt.Sprintf("source-%s", uuid.NewString()))
	out, err := os.Create(tmpName)
	if err != nil {
		return "", false, errors.Wrap(err, "create temp file")
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmpName)
		return "", false, errors.Wrapf(ErrSourceUnavailable, "download %s: %v", rawURL, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpName)
		return "", false, errors.Wrap(err, "close temp file")
	}

	r.logger.Debug().Str("url", rawURL).Str("path", tmpName).Msg("source downloaded")
	return tmpName, true, nil
}

// Cleanup removes a resolved source if it was temporary. Safe to defer on
// every exit path.
func (r *Resolver) Cleanup(path string, temporary bool) {
	if !temporary || path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.logger.Warn().Err(err).Str("path", path).Msg("failed to remove temporary source")
	}
}
