package permissions

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-mfg/meridian-portal/internal/catalog"
	"github.com/meridian-mfg/meridian-portal/internal/platform/httpx"
)

func passThrough(next http.Handler) http.Handler { return next }

func newTestRouter(t *testing.T, f *resolverFixture, exposeDetails bool) http.Handler {
	t.Helper()
	handler := NewHandler(f.resolver, NewService(&memoryAdminStore{}), httpx.Responder{ExposeDetails: exposeDetails})
	r := chi.NewRouter()
	handler.MountRoutes(r, passThrough)
	return r
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httpx.Envelope {
	t.Helper()
	var env httpx.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestCheckEndpointRequiresUserEmail(t *testing.T) {
	router := newTestRouter(t, newResolverFixture(LevelEdit), true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/permissions/check?feature_id=F1", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.False(t, env.Success)
	require.Equal(t, "user_email is required", env.Error)
}

func TestCheckEndpointSingleFeature(t *testing.T) {
	f := newResolverFixture(LevelEdit)
	f.store.direct["a@x.com"] = []DirectGrant{
		{ID: "g1", UserEmail: "a@x.com", FeatureIDs: []string{"F1"}, Level: LevelView},
	}
	router := newTestRouter(t, f, true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/permissions/check?user_email=a@x.com&feature_id=F1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)

	data, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var result CheckResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Equal(t, LevelView, result.Level)
	require.True(t, result.CanView)
	require.False(t, result.CanEdit)
}

func TestCheckEndpointFullMatrix(t *testing.T) {
	f := newResolverFixture(LevelEdit)
	f.features.features = []catalog.Feature{
		{ID: "F1", Active: true},
		{ID: "F2", Active: true},
		{ID: "F3", Active: false},
	}
	router := newTestRouter(t, f, true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/permissions/check?user_email=a@x.com", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)
	require.NotNil(t, env.Total)
	require.Equal(t, 2, *env.Total)
}

func TestCheckEndpointResolutionUnavailable(t *testing.T) {
	f := newResolverFixture(LevelEdit)
	f.store.failWith = errors.New("pg: connection refused")
	router := newTestRouter(t, f, false)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/permissions/check?user_email=a@x.com&feature_id=F1", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	require.False(t, env.Success)
	require.Equal(t, "permission resolution unavailable", env.Error)
	require.Empty(t, env.Details, "diagnostics stay hidden in production")
}

func TestCheckEndpointExposesDetailsOutsideProduction(t *testing.T) {
	f := newResolverFixture(LevelEdit)
	f.store.failWith = errors.New("pg: connection refused")
	router := newTestRouter(t, f, true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/permissions/check?user_email=a@x.com&feature_id=F1", nil))

	env := decodeEnvelope(t, rec)
	require.Contains(t, env.Details, "connection refused")
}

func TestCreateGrantEndpointValidation(t *testing.T) {
	router := newTestRouter(t, newResolverFixture(LevelEdit), true)

	body := `{"userEmail":"a@x.com","featureIds":["F1"],"level":"admin"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/permissions/grants", strings.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.False(t, env.Success)
	require.Contains(t, env.Error, "Level")
}

func TestCreateGrantEndpoint(t *testing.T) {
	router := newTestRouter(t, newResolverFixture(LevelEdit), true)

	body := `{"userEmail":"a@x.com","featureIds":["F1","F2"],"level":"view","grantedBy":"ops@x.com"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/permissions/grants", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)
}
