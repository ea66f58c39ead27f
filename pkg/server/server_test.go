package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fieldops/regsync/pkg/registration"
	"github.com/fieldops/regsync/pkg/syncer"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	online     bool
	captured   []string
	retryMsg   string
	retryErr   error
	syncResult registration.SyncResult
}

func (f *fakePipeline) IsOnline(context.Context) bool { return f.online }

func (f *fakePipeline) Capture(_ context.Context, agentID string, customer registration.CustomerData, agent registration.AgentData) (syncer.CaptureResult, error) {
	if err := customer.Validate(); err != nil {
		return syncer.CaptureResult{}, err
	}
	f.captured = append(f.captured, agentID)
	if !f.online {
		return syncer.CaptureResult{QueueID: "q-1", Queued: true, Message: "queued"}, nil
	}
	return syncer.CaptureResult{RemoteID: "r-1", Submitted: true, Message: "ok"}, nil
}

func (f *fakePipeline) SyncEverything(context.Context, string, syncer.ProgressFunc) registration.SyncResult {
	return f.syncResult
}

func (f *fakePipeline) RetryPending(context.Context, string) (string, error) {
	return f.retryMsg, f.retryErr
}

type fakeQueue struct {
	entries []registration.PendingRegistration
	err     error
}

func (f *fakeQueue) ListPending(_ context.Context, agentID string) ([]registration.PendingRegistration, error) {
	var out []registration.PendingRegistration
	for _, e := range f.entries {
		if e.AgentID == agentID {
			out = append(out, e)
		}
	}
	return out, f.err
}

func (f *fakeQueue) Count(ctx context.Context, agentID string) (int, error) {
	entries, err := f.ListPending(ctx, agentID)
	return len(entries), err
}

type fakeRemote struct {
	counts map[string]int
	err    error
}

func (f *fakeRemote) CountUnsubmitted(_ context.Context, agentID string) (int, error) {
	return f.counts[agentID], f.err
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndPending(t *testing.T) {
	q := &fakeQueue{entries: []registration.PendingRegistration{
		{ID: "a", AgentID: "agent-1", Status: registration.StatusPending},
		{ID: "b", AgentID: "agent-2", Status: registration.StatusFailed},
	}}
	h := New(&fakePipeline{online: true}, q, nil).Routes()

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"online":true}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/agents/agent-1/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []registration.PendingRegistration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ID)

	rec = do(t, h, http.MethodGet, "/agents/agent-1/pending/count", "")
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/agents/nobody/pending", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestQueueErrorsDegradeToEmpty(t *testing.T) {
	h := New(&fakePipeline{}, &fakeQueue{err: errors.New("disk gone")}, nil).Routes()
	rec := do(t, h, http.MethodGet, "/agents/agent-1/pending/count", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())
}

func TestCapture(t *testing.T) {
	body := `{"customer":{"first_name":"Jane","last_name":"Doe","primary_phone":"0712345678",
		"package_code":"home-10","installation_town":"Nairobi","visit_date":"2025-03-07","visit_time":"2:30 PM"},
		"agent":{"name":"Agent A","mobile":"0700000001"}}`

	pipeline := &fakePipeline{online: true}
	h := New(pipeline, &fakeQueue{}, nil).Routes()
	rec := do(t, h, http.MethodPost, "/agents/agent-1/registrations", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"agent-1"}, pipeline.captured)

	pipeline.online = false
	rec = do(t, h, http.MethodPost, "/agents/agent-1/registrations", body)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, h, http.MethodPost, "/agents/agent-1/registrations", `{"customer":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_registration")

	rec = do(t, h, http.MethodPost, "/agents/agent-1/registrations", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSync(t *testing.T) {
	h := New(&fakePipeline{syncResult: registration.OfflineResult()}, &fakeQueue{}, nil).Routes()
	rec := do(t, h, http.MethodPost, "/agents/agent-1/sync", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":false,"synced":0,"failed":0,"errors":["Device is offline"]}`, rec.Body.String())
}

func TestRetry(t *testing.T) {
	cases := []struct {
		name     string
		msg      string
		err      error
		wantCode int
		wantBody string
	}{
		{name: "ok", msg: "Jane Doe synced successfully", wantCode: http.StatusOK, wantBody: `"success":true`},
		{name: "missing", err: syncer.ErrNotQueued, wantCode: http.StatusNotFound, wantBody: "not_found"},
		{name: "offline", msg: registration.OfflineMessage, err: syncer.ErrOffline, wantCode: http.StatusServiceUnavailable, wantBody: "offline"},
		{name: "sync failed", msg: "Sync failed: rejected", err: errors.New("rejected"), wantCode: http.StatusOK, wantBody: `"success":false`},
		{name: "storage", err: errors.New("queue: get failed"), wantCode: http.StatusInternalServerError, wantBody: "retry_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := New(&fakePipeline{retryMsg: tc.msg, retryErr: tc.err}, &fakeQueue{}, nil).Routes()
			rec := do(t, h, http.MethodPost, "/pending/01HX/retry", "")
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.wantBody)
		})
	}
}

func TestCountUnsynced(t *testing.T) {
	pipeline := &fakePipeline{online: true}
	remote := &fakeRemote{counts: map[string]int{"agent-1": 3}}
	h := New(pipeline, &fakeQueue{}, remote).Routes()

	rec := do(t, h, http.MethodGet, "/agents/agent-1/unsynced/count", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":3}`, rec.Body.String())

	remote.err = errors.New("bitable down")
	rec = do(t, h, http.MethodGet, "/agents/agent-1/unsynced/count", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "datastore_unavailable")

	pipeline.online = false
	rec = do(t, h, http.MethodGet, "/agents/agent-1/unsynced/count", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, New(pipeline, &fakeQueue{}, nil).Routes(), http.MethodGet, "/agents/agent-1/unsynced/count", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
