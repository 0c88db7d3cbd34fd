package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   string
}

func fakeAPI(t *testing.T, status int, reply string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{
			method: r.Method, path: r.URL.Path, query: r.URL.RawQuery,
			auth: r.Header.Get("Authorization"), body: string(b),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	c := &apiClient{BaseURL: srv.URL, Token: "tok", HTTP: srv.Client()}
	root := newRootCmd(c)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestOrdersListPrintsTable(t *testing.T) {
	srv, calls := fakeAPI(t, http.StatusOK, `[{"id":"ord_1","setup_status":"pending_setup","company_name":"Pizzeria Da Mario","subscription_plan":"starter"}]`)

	out, err := run(t, srv, "orders", "list", "--status", "pending_setup,setup_in_progress")
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodGet, call.method)
	assert.Equal(t, "/v1/admin/orders", call.path)
	assert.Equal(t, "status=pending_setup%2Csetup_in_progress", call.query)
	assert.Equal(t, "Bearer tok", call.auth)
	assert.Contains(t, out, "ord_1")
	assert.Contains(t, out, "Pizzeria Da Mario")
	assert.Contains(t, out, "STATUS")
}

func TestConfigureAgentSendsOverrides(t *testing.T) {
	srv, calls := fakeAPI(t, http.StatusOK, `{"agent_id":"asst_1"}`)

	out, err := run(t, srv, "configure-agent", "ord_1", "--voice", "female_warm", "--response-mode", "missed_call_only")
	require.NoError(t, err)

	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/v1/admin/orders/ord_1/agent", call.path)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(call.body), &body))
	assert.Equal(t, "female_warm", body["voice"])
	assert.Equal(t, "missed_call_only", body["response_mode"])
	assert.NotContains(t, body, "prompt")
	assert.Contains(t, out, `"agent_id": "asst_1"`)
}

func TestAttachNumberPostsNumberAndSID(t *testing.T) {
	srv, calls := fakeAPI(t, http.StatusOK, `{}`)

	_, err := run(t, srv, "attach-number", "ord_1", "+390212345678", "--sid", "PN9")
	require.NoError(t, err)

	call := (*calls)[0]
	assert.Equal(t, "/v1/admin/orders/ord_1/number", call.path)
	assert.JSONEq(t, `{"phone_number":"+390212345678","sid":"PN9"}`, call.body)
}

func TestTransitionCommandsHitTheirEndpoints(t *testing.T) {
	for cmd, path := range map[string]string{
		"verify":   "/v1/admin/orders/ord_1/verify",
		"activate": "/v1/admin/orders/ord_1/activate",
		"go-live":  "/v1/admin/orders/ord_1/go-live",
		"suspend":  "/v1/admin/orders/ord_1/suspend",
		"resume":   "/v1/admin/orders/ord_1/resume",
	} {
		srv, calls := fakeAPI(t, http.StatusOK, `{"id":"ord_1"}`)
		_, err := run(t, srv, cmd, "ord_1")
		require.NoError(t, err, cmd)
		assert.Equal(t, path, (*calls)[0].path, cmd)
	}
}

func TestErrorResponseSurfacesServerMessage(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusConflict, `{"error":"illegal status transition: order is active"}`)

	_, err := run(t, srv, "go-live", "ord_1")
	require.Error(t, err)
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "illegal status transition: order is active", apiErr.Body)
}

func TestAutoSetupPrintsPartialResultOnFailure(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusBadGateway, `{"error":"carrier failed","step":"purchase_number","result":{"agent_created":true}}`)

	out, err := run(t, srv, "auto-setup", "ord_1")
	require.Error(t, err)
	assert.Contains(t, out, `"step": "purchase_number"`)
}

func TestArgsAreValidated(t *testing.T) {
	srv, calls := fakeAPI(t, http.StatusOK, `{}`)

	_, err := run(t, srv, "activate")
	require.Error(t, err)
	assert.Empty(t, *calls)
}
