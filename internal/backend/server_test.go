package backend

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hpungsan/csm-companion/internal/db"
	"github.com/hpungsan/csm-companion/internal/logging"
	"github.com/hpungsan/csm-companion/internal/pulse"
)

var testNow = time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

type testBackend struct {
	srv    *Server
	http   *httptest.Server
	token  string
	client *http.Client
}

func newTestBackend(t *testing.T, opts Options) *testBackend {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	seed, err := LoadSeed("")
	require.NoError(t, err)
	require.NoError(t, seed.Apply(database))

	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	opts.Secret = []byte("test-secret")
	s := New(database, opts)
	t.Cleanup(s.Close)

	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)

	tb := &testBackend{srv: s, http: hs, client: hs.Client()}
	tb.token = tb.fetchToken(t, "supportportal_token")
	return tb
}

func (tb *testBackend) fetchToken(t *testing.T, service string) string {
	t.Helper()
	resp, err := tb.client.Get(tb.http.URL + "/sso/token?service=" + service)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func (tb *testBackend) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, tb.http.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tb.token)
	resp, err := tb.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestToken_RequiresService(t *testing.T) {
	tb := newTestBackend(t, Options{})
	resp, err := tb.client.Get(tb.http.URL + "/sso/token")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestToken_Claims(t *testing.T) {
	tb := newTestBackend(t, Options{TokenTTL: 30 * time.Minute})
	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(tb.token, claims)
	require.NoError(t, err)
	require.Equal(t, "supportportal_token", claims.Service)
	require.Equal(t, testNow.Add(30*time.Minute).Unix(), claims.ExpiresAt.Unix())
}

func TestAuth_Rejects(t *testing.T) {
	tb := newTestBackend(t, Options{})

	resp, err := tb.client.Get(tb.http.URL + "/case/pulse/CASE-1001")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tb.token = "not-a-jwt"
	require.Equal(t, http.StatusUnauthorized, tb.do(t, http.MethodGet, "/case/pulse/CASE-1001", nil, nil))

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("other"))
	require.NoError(t, err)
	tb.token = forged
	require.Equal(t, http.StatusUnauthorized, tb.do(t, http.MethodGet, "/case/pulse/CASE-1001", nil, nil))
}

func TestAuth_ExpiredToken(t *testing.T) {
	now := testNow
	tb := newTestBackend(t, Options{TokenTTL: time.Minute, Now: func() time.Time { return now }})
	require.Equal(t, http.StatusOK, tb.do(t, http.MethodGet, "/case/pulse/CASE-1001", nil, nil))

	now = testNow.Add(2 * time.Minute)
	require.Equal(t, http.StatusUnauthorized, tb.do(t, http.MethodGet, "/case/pulse/CASE-1001", nil, nil))
}

func TestGetPulse_SeededAndNew(t *testing.T) {
	tb := newTestBackend(t, Options{})

	var found []*pulse.Record
	require.Equal(t, http.StatusOK, tb.do(t, http.MethodGet, "/case/pulse/CASE-1001", nil, &found))
	require.Len(t, found, 1)
	require.Equal(t, "<p>Users cannot log on after the upgrade</p>", *found[0].Symptom)
	require.Equal(t, "I100001", found[0].UpdatedBy)

	var none []*pulse.Record
	require.Equal(t, http.StatusOK, tb.do(t, http.MethodGet, "/case/pulse/CASE-9999", nil, &none))
	require.NotNil(t, none)
	require.Empty(t, none)
}

func TestUpdatePulse_StampsSystemAccount(t *testing.T) {
	tb := newTestBackend(t, Options{})

	cause := "<p>Expired certificate</p>"
	var updated []*pulse.Record
	status := tb.do(t, http.MethodPost, "/case/pulse/CASE-1001", map[string]any{"cause": cause}, &updated)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, updated, 1)
	require.Equal(t, cause, *updated[0].Cause)
	require.Equal(t, "<p>Users cannot log on after the upgrade</p>", *updated[0].Symptom)
	require.Equal(t, "2026-03-03 12:00:00", updated[0].UpdatedOn)
	require.Equal(t, "INT_ISE2SN", updated[0].UpdatedBy)
}

func TestUpdatePulse_LogsCallerService(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tb := newTestBackend(t, Options{Log: logging.FromZap(zap.New(core))})

	status := tb.do(t, http.MethodPost, "/case/pulse/CASE-1001", map[string]any{"cause": "<p>Expired certificate</p>"}, nil)
	require.Equal(t, http.StatusOK, status)

	entries := logs.FilterMessage("pulse updated").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "CASE-1001", fields["case_id"])
	require.Equal(t, "supportportal_token", fields["service"])
}

func TestUpdatePulse_InvalidBody(t *testing.T) {
	tb := newTestBackend(t, Options{})
	req, err := http.NewRequest(http.MethodPost, tb.http.URL+"/case/pulse/CASE-1", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tb.token)
	resp, err := tb.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "INVALID_REQUEST", body["error"]["code"])
}

func TestListAutomations(t *testing.T) {
	tb := newTestBackend(t, Options{})

	var all []db.Automation
	require.Equal(t, http.StatusOK, tb.do(t, http.MethodGet, "/automations/HAN-DB", nil, &all))
	require.Len(t, all, 2)

	var filtered []db.Automation
	require.Equal(t, http.StatusOK, tb.do(t, http.MethodGet, "/automations/BC-CP-CF?product=SAP%20HANA", nil, &filtered))
	require.Empty(t, filtered)
}

func TestExecuteAndHistory(t *testing.T) {
	tb := newTestBackend(t, Options{})

	var run db.Run
	status := tb.do(t, http.MethodPost, "/automation/execute", map[string]any{
		"id":          "hana-memory-check",
		"incident_no": "CASE-1001",
		"component":   "HAN-DB",
		"options":     []map[string]any{{"name": "region", "values": []string{"eu10"}}},
	}, &run)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, StatusRunning, run.Status)
	require.Len(t, run.WorkflowID, 26)
	require.Equal(t, "Memory consumption check", run.Name)

	var history []db.Run
	require.Equal(t, http.StatusOK, tb.do(t, http.MethodGet, "/automations/history/CASE-1001", nil, &history))
	require.Len(t, history, 1)
	require.Equal(t, run.WorkflowID, history[0].WorkflowID)
	require.Equal(t, []db.RunOption{{Name: "region", Values: []string{"eu10"}}}, history[0].Options)
}

func TestExecute_UnknownAutomation(t *testing.T) {
	tb := newTestBackend(t, Options{})
	status := tb.do(t, http.MethodPost, "/automation/execute", map[string]any{"id": "ghost", "incident_no": "C"}, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestExecute_CompletesAfterDelay(t *testing.T) {
	tb := newTestBackend(t, Options{CompleteAfter: 10 * time.Millisecond})

	var run db.Run
	require.Equal(t, http.StatusOK, tb.do(t, http.MethodPost, "/automation/execute", map[string]any{
		"id": "btp-subaccount-health", "incident_no": "CASE-2",
	}, &run))

	require.Eventually(t, func() bool {
		got, err := db.GetRun(tb.srv.db, run.WorkflowID)
		return err == nil && got.Status == StatusSuccess && got.CompletedTS != ""
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFeedback(t *testing.T) {
	tb := newTestBackend(t, Options{})

	var run db.Run
	require.Equal(t, http.StatusOK, tb.do(t, http.MethodPost, "/automation/execute", map[string]any{
		"id": "hana-memory-check", "incident_no": "CASE-1001",
	}, &run))

	var fb db.Feedback
	status := tb.do(t, http.MethodPost, "/automation/feedback", map[string]any{
		"automation_id": "hana-memory-check", "workflow_id": run.WorkflowID, "thumb_up": true, "thumb_down": false,
	}, &fb)
	require.Equal(t, http.StatusOK, status)
	require.True(t, fb.ThumbUp)
	require.NotEmpty(t, fb.ID)

	var history []db.Run
	tb.do(t, http.MethodGet, "/automations/history/CASE-1001", nil, &history)
	require.True(t, history[0].ThumbUp)

	status = tb.do(t, http.MethodPost, "/automation/feedback", map[string]any{
		"automation_id": "hana-memory-check", "workflow_id": run.WorkflowID, "thumb_up": true, "thumb_down": true,
	}, nil)
	require.Equal(t, http.StatusBadRequest, status)

	status = tb.do(t, http.MethodPost, "/automation/feedback", map[string]any{
		"automation_id": "hana-memory-check", "workflow_id": "missing",
	}, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestUnknownRoute(t *testing.T) {
	tb := newTestBackend(t, Options{})
	require.Equal(t, http.StatusNotFound, tb.do(t, http.MethodGet, "/nope", nil, nil))
}
