package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/bulkmail-backend/internal/logger"
	"github.com/unclebandit/bulkmail-backend/internal/repository/memory"
	"github.com/unclebandit/bulkmail-backend/internal/server"
	"github.com/unclebandit/bulkmail-backend/internal/service"
)

type recordingTransport struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []string
}

func (t *recordingTransport) Send(_ context.Context, to, subject, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail[to] {
		return errors.New("550 mailbox unavailable")
	}
	t.sent = append(t.sent, fmt.Sprintf("%s|%s|%s", to, subject, body))
	return nil
}

type testAPI struct {
	t         *testing.T
	srv       *httptest.Server
	transport *recordingTransport
}

func newTestAPI(t *testing.T) *testAPI {
	store := memory.NewStore()
	log := logger.Nop()
	transport := &recordingTransport{fail: map[string]bool{}}

	dispatcher := &service.Dispatcher{
		TemplateRepo:  store.Templates(),
		RecipientRepo: store.Recipients(),
		Ledger:        store.History(),
		Transport:     transport,
		Log:           log,
		Concurrency:   2,
		SendTimeout:   time.Second,
	}
	deps := server.Deps{
		Auth:       &service.AuthService{UserRepo: store.Users(), Secret: []byte("router-test"), TTL: time.Hour},
		Templates:  &service.TemplateService{TemplateRepo: store.Templates()},
		Recipients: &service.RecipientService{RecipientRepo: store.Recipients(), Log: log},
		Campaigns: &service.CampaignService{
			CampaignRepo:  store.Campaigns(),
			TemplateRepo:  store.Templates(),
			RecipientRepo: store.Recipients(),
			Ledger:        store.History(),
			Pipeline:      dispatcher,
			Log:           log,
		},
		Log: log,
	}
	srv := httptest.NewServer(server.NewRouter(deps))
	t.Cleanup(srv.Close)
	return &testAPI{t: t, srv: srv, transport: transport}
}

func (a *testAPI) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (a *testAPI) register(email string) string {
	code, body := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": email, "password": "correct horse"})
	require.Equal(a.t, http.StatusCreated, code)
	return body["token"].(string)
}

func id(v interface{}) int {
	return int(v.(float64))
}

func TestRouter_SendCampaignEndToEnd(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("owner@example.com")
	api.transport.fail["b@x.com"] = true

	code, tpl := api.do(http.MethodPost, "/api/templates", token, map[string]string{
		"name": "welcome", "subject": "Hello {{name}}", "body": "Hi {{name}}, {{email}}",
	})
	require.Equal(t, http.StatusCreated, code)

	for _, e := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		code, _ = api.do(http.MethodPost, "/api/recipients", token, map[string]string{"email": e, "name": "N"})
		require.Equal(t, http.StatusCreated, code)
	}

	code, campaign := api.do(http.MethodPost, "/api/campaigns", token, map[string]interface{}{
		"name": "launch", "templateId": id(tpl["id"]),
	})
	require.Equal(t, http.StatusCreated, code)
	cid := id(campaign["id"])
	assert.Equal(t, "Draft", campaign["status"])

	code, sent := api.do(http.MethodPost, fmt.Sprintf("/api/campaigns/%d/send", cid), token, nil)
	require.Equal(t, http.StatusOK, code)
	data := sent["data"].(map[string]interface{})
	assert.EqualValues(t, 3, data["total"])
	assert.EqualValues(t, 2, data["success"])
	assert.EqualValues(t, 1, data["failed"])

	code, got := api.do(http.MethodGet, fmt.Sprintf("/api/campaigns/%d", cid), token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Sent", got["status"])

	code, stats := api.do(http.MethodGet, fmt.Sprintf("/api/campaigns/%d/stats", cid), token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]interface{}{"total": 3.0, "sent": 2.0, "failed": 1.0}, stats["stats"])

	code, hist := api.do(http.MethodGet, fmt.Sprintf("/api/campaigns/%d/history", cid), token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, hist["history"], 3)

	// resending a Sent campaign is a state conflict
	code, _ = api.do(http.MethodPost, fmt.Sprintf("/api/campaigns/%d/send", cid), token, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = api.do(http.MethodDelete, fmt.Sprintf("/api/campaigns/%d", cid), token, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestRouter_ErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("owner@example.com")
	other := api.register("other@example.com")

	code, _ := api.do(http.MethodGet, "/api/campaigns", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = api.do(http.MethodGet, "/api/campaigns/999", token, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = api.do(http.MethodGet, "/api/campaigns/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := api.do(http.MethodPost, "/api/campaigns", token, map[string]interface{}{"name": ""})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_failed", body["error"])

	code, tpl := api.do(http.MethodPost, "/api/templates", token, map[string]string{"name": "t", "subject": "s", "body": "b"})
	require.Equal(t, http.StatusCreated, code)

	// another owner cannot see or use it
	code, _ = api.do(http.MethodGet, fmt.Sprintf("/api/templates/%d", id(tpl["id"])), other, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, campaign := api.do(http.MethodPost, "/api/campaigns", token, map[string]interface{}{"name": "empty", "templateId": id(tpl["id"])})
	require.Equal(t, http.StatusCreated, code)

	code, _ = api.do(http.MethodPost, fmt.Sprintf("/api/campaigns/%d/send", id(campaign["id"])), token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, got := api.do(http.MethodGet, fmt.Sprintf("/api/campaigns/%d", id(campaign["id"])), token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Failed", got["status"])

	code, _ = api.do(http.MethodPost, "/api/recipients", token, map[string]string{"email": "dup@x.com"})
	require.Equal(t, http.StatusCreated, code)
	code, _ = api.do(http.MethodPost, "/api/recipients", token, map[string]string{"email": "DUP@x.com"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "owner@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRouter_ScheduleFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("owner@example.com")
	_, tpl := api.do(http.MethodPost, "/api/templates", token, map[string]string{"name": "t", "subject": "s", "body": "b"})
	_, campaign := api.do(http.MethodPost, "/api/campaigns", token, map[string]interface{}{"name": "later", "templateId": id(tpl["id"])})
	path := fmt.Sprintf("/api/campaigns/%d/schedule", id(campaign["id"]))

	at := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	code, body := api.do(http.MethodPost, path, token, map[string]string{"scheduledAt": at})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Scheduled", body["data"].(map[string]interface{})["status"])

	code, _ = api.do(http.MethodPost, path, token, map[string]string{"scheduledAt": at})
	assert.Equal(t, http.StatusConflict, code)
}

func TestRouter_BulkClassifyAndValidateEmails(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("owner@example.com")

	code, body := api.do(http.MethodPost, "/api/recipients/bulk", token, map[string]interface{}{
		"csvHeaders": []string{"name", "email"},
		"recipients": []map[string]string{
			{"email": "a@example.com", "name": "A"},
			{"email": "a@example.com", "name": "A again"},
			{"email": "broken", "name": "B"},
		},
	})
	require.Equal(t, http.StatusOK, code)
	summary := body["data"].(map[string]interface{})["summary"].(map[string]interface{})
	assert.EqualValues(t, 1, summary["valid"])
	assert.EqualValues(t, 1, summary["duplicatesInCsv"])
	assert.EqualValues(t, 1, summary["invalid"])

	code, _ = api.do(http.MethodPost, "/api/recipients/bulk", token, map[string]interface{}{
		"csvHeaders": []string{"email"},
		"recipients": []map[string]string{{"email": "a@example.com"}},
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = api.do(http.MethodPost, "/api/campaigns/validate-emails", token, map[string]interface{}{
		"emails": []string{"ada@gmail.com", "x@mailinator.com"},
	})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["summary"].(map[string]interface{})["valid"])
}

func TestRouter_Health(t *testing.T) {
	api := newTestAPI(t)
	code, body := api.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}
