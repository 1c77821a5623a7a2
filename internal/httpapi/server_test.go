package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/ahart-dev/vaultmind/internal/errs"
	"github.com/ahart-dev/vaultmind/internal/job"
	"github.com/ahart-dev/vaultmind/internal/model"
	"github.com/ahart-dev/vaultmind/internal/search"
)

type fakeEngine struct {
	results []search.Result
	err     error
	lastReq search.Request
}

func (f *fakeEngine) Search(ctx context.Context, req search.Request) ([]search.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeJobs struct {
	startSub     job.Submission
	startErr     error
	statusJob    model.Job
	statusOK     bool
	progressJob  model.Job
	progressOK   bool
	cancelResult bool
	lastVault    model.Vault
	lastFull     bool
	lastCallback string
}

func (f *fakeJobs) Start(ctx context.Context, vault model.Vault, full bool, callbackURL string) (job.Submission, error) {
	f.lastVault, f.lastFull, f.lastCallback = vault, full, callbackURL
	if f.startErr != nil {
		return job.Submission{}, f.startErr
	}
	return f.startSub, nil
}

func (f *fakeJobs) Status(id string) (model.Job, bool)         { return f.statusJob, f.statusOK }
func (f *fakeJobs) RunningProgress() (model.Job, bool)         { return f.progressJob, f.progressOK }
func (f *fakeJobs) Cancel(id string) bool                      { return f.cancelResult }

func TestServer_Health_IsExemptFromAuth(t *testing.T) {
	s := New(&fakeEngine{}, &fakeJobs{}, "secret")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Search_RejectsMissingBearerToken(t *testing.T) {
	s := New(&fakeEngine{}, &fakeJobs{}, "secret")
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewBufferString(`{"query":"roadmap"}`))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_Search_AcceptsStaticSharedSecret(t *testing.T) {
	engine := &fakeEngine{results: []search.Result{{Path: "roadmap.md", Score: 0.9}}}
	s := New(engine, &fakeJobs{}, "secret")

	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewBufferString(`{"query":"roadmap","vault":"work","mode":"hybrid"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "roadmap", engine.lastReq.Query)
	require.Equal(t, model.VaultWork, engine.lastReq.Vault)
	require.Equal(t, search.ModeHybrid, engine.lastReq.Mode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body["results"], 1)
}

func TestServer_Search_AcceptsJWTSignedWithSharedSecretAsHMACKey(t *testing.T) {
	s := New(&fakeEngine{}, &fakeJobs{}, "secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "vaultmind-client"})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewBufferString(`{"query":"notes"}`))
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Search_RejectsJWTSignedWithWrongKey(t *testing.T) {
	s := New(&fakeEngine{}, &fakeJobs{}, "secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "intruder"})
	signed, err := token.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewBufferString(`{"query":"notes"}`))
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_NoBearerSecretConfigured_DisablesAuth(t *testing.T) {
	s := New(&fakeEngine{}, &fakeJobs{}, "")
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewBufferString(`{"query":"notes"}`))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_IndexStart_ReturnsAcceptedWithJobID(t *testing.T) {
	jobs := &fakeJobs{startSub: job.Submission{JobID: "abc123", Status: model.JobPending}}
	s := New(&fakeEngine{}, jobs, "secret")

	req := httptest.NewRequest(http.MethodPost, "/index/start", bytes.NewBufferString(`{"vault":"work","full":true,"callback_url":"http://example.com/cb"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, model.VaultWork, jobs.lastVault)
	require.True(t, jobs.lastFull)
	require.Equal(t, "http://example.com/cb", jobs.lastCallback)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "abc123", body["job_id"])
}

func TestServer_IndexStart_PropagatesConflictFromLockedJob(t *testing.T) {
	jobs := &fakeJobs{startErr: errs.New(errs.KindJobBodyException, "another process is already indexing", nil)}
	s := New(&fakeEngine{}, jobs, "secret")

	req := httptest.NewRequest(http.MethodPost, "/index/start", bytes.NewBufferString(`{"vault":"work"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_IndexStatus_UnknownJobReturnsNotFound(t *testing.T) {
	s := New(&fakeEngine{}, &fakeJobs{statusOK: false}, "secret")

	req := httptest.NewRequest(http.MethodGet, "/index/status/does-not-exist", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_IndexStatus_KnownJobReturnsBody(t *testing.T) {
	jobs := &fakeJobs{statusOK: true, statusJob: model.Job{ID: "abc123", Status: model.JobRunning}}
	s := New(&fakeEngine{}, jobs, "secret")

	req := httptest.NewRequest(http.MethodGet, "/index/status/abc123", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body model.Job
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "abc123", body.ID)
}

func TestServer_IndexProgress_ReportsNotRunningWhenIdle(t *testing.T) {
	s := New(&fakeEngine{}, &fakeJobs{progressOK: false}, "secret")

	req := httptest.NewRequest(http.MethodGet, "/index/progress", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, false, body["running"])
}

func TestServer_IndexCancel_ConflictWhenNotRunning(t *testing.T) {
	s := New(&fakeEngine{}, &fakeJobs{cancelResult: false}, "secret")

	req := httptest.NewRequest(http.MethodPost, "/index/cancel/abc123", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_IndexCancel_OKWhenRunning(t *testing.T) {
	s := New(&fakeEngine{}, &fakeJobs{cancelResult: true}, "secret")

	req := httptest.NewRequest(http.MethodPost, "/index/cancel/abc123", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
