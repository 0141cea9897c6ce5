package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelport/channelport-api/internal/authz"
	"github.com/channelport/channelport-api/internal/driver"
	"github.com/channelport/channelport-api/internal/models"
	"github.com/channelport/channelport-api/internal/repository"
	"github.com/channelport/channelport-api/internal/vault"
)

type fakeIntegrationRepo struct {
	repository.IntegrationRepository
	created models.Integration
}

func (f *fakeIntegrationRepo) Create(integ models.Integration) (models.Integration, error) {
	integ.ID = "int-1"
	f.created = integ
	return integ, nil
}

func newIntegrationTestHandler(t *testing.T) (*IntegrationHandler, *fakeIntegrationRepo) {
	t.Helper()
	registry, err := driver.NewRegistry(driver.NewFileFeedDriver(time.Second, zerolog.Nop()))
	require.NoError(t, err)

	key := make([]byte, 32)
	_, err = rand.Read(key)
	require.NoError(t, err)
	v, err := vault.New(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)

	repo := &fakeIntegrationRepo{}
	return NewIntegrationHandler(repo, registry, v, nil, nil, zerolog.Nop()), repo
}

func createIntegration(t *testing.T, h *IntegrationHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/integrations", strings.NewReader(body))
	req = req.WithContext(authz.WithIdentity(req.Context(), "tenant-1", "user-1", nil))
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	return rec
}

func TestCreateIntegrationMergesDriverDefaults(t *testing.T) {
	h, repo := newIntegrationTestHandler(t)

	rec := createIntegration(t, h, `{"name":"Feed","type":"csv_xml_feed"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	// A bare create still carries the driver's config shape.
	val, ok := repo.created.Config["feed_url"]
	require.True(t, ok, "driver default feed_url missing from stored config")
	assert.Equal(t, "", val)
}

func TestCreateIntegrationPayloadOverridesDefaults(t *testing.T) {
	h, repo := newIntegrationTestHandler(t)

	rec := createIntegration(t, h, `{"name":"Feed","type":"csv_xml_feed","config":{"feed_url":"https://example.com/feed.csv"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, "https://example.com/feed.csv", repo.created.Config["feed_url"])
}
