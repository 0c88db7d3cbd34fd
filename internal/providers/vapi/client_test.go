package vapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aniladanir/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provisioner/internal/domain"
)

func TestCreateAssistantFallsBackToUnversionedPath(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	seen := func() []string {
		mu.Lock()
		defer mu.Unlock()
		out := paths
		paths = nil
		return out
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/v1/assistant" {
			http.NotFound(w, r)
			return
		}
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var body AssistantRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "missed-call", body.ResponseMode)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"asst_1","name":"Rossi"}`))
	}))
	defer srv.Close()

	c := &Client{APIKey: "key", BaseURL: srv.URL, HTTP: srv.Client()}
	req := NewAssistantRequest("Rossi", domain.AgentConfig{Prompt: "p", Voice: "v", ResponseMode: domain.ResponseMissedCallOnly}, domain.MessagingChannel{}, "", nil)
	a, err := c.CreateAssistant(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "asst_1", a.ID)
	assert.Equal(t, []string{"/v1/assistant", "/assistant"}, seen())

	// the unversioned path is remembered
	_, _ = c.CreateAssistant(context.Background(), req)
	assert.Equal(t, []string{"/assistant"}, seen())
}

func TestGetAssistantNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := &Client{APIKey: "key", BaseURL: srv.URL, HTTP: srv.Client()}
	_, err := c.GetAssistant(context.Background(), "asst_missing")
	assert.ErrorIs(t, err, ErrAssistantNotFound)
}

func TestLinkNumberImportsAndAssigns(t *testing.T) {
	var assigned string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/phone-number":
			_, _ = w.Write([]byte(`[]`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/phone-number":
			var body importRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "twilio", body.Provider)
			assert.Equal(t, "AC1", body.TwilioAccountSid)
			_, _ = w.Write([]byte(`{"id":"pn_1","number":"+390212345678"}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/v1/phone-number/pn_1":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assigned = body["assistantId"]
			_, _ = w.Write([]byte(`{"id":"pn_1","number":"+390212345678","assistantId":"asst_1"}`))
		default:
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := &Client{APIKey: "key", BaseURL: srv.URL, HTTP: srv.Client(), TwilioAccountSID: "AC1", TwilioAuthToken: "tok"}
	pn, err := c.LinkNumber(context.Background(), "+390212345678", "asst_1", "Rossi")
	require.NoError(t, err)
	assert.Equal(t, "asst_1", assigned)
	assert.Equal(t, "asst_1", pn.AssistantID)
}

func TestImportAlreadyExistsResolvesExisting(t *testing.T) {
	var lists int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			atomic.AddInt32(&lists, 1)
			_, _ = w.Write([]byte(`[{"id":"pn_9","number":"+390212345678","assistantId":"asst_1"}]`))
		case http.MethodPost:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"Number Already Exists"}`))
		}
	}))
	defer srv.Close()

	c := &Client{APIKey: "key", BaseURL: srv.URL, HTTP: srv.Client()}
	pn, err := c.ImportPhoneNumber(context.Background(), "+390212345678", "")
	require.NoError(t, err)
	assert.Equal(t, "pn_9", pn.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&lists))
}

func TestSafeCallsRetryServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"asst_1"}`))
	}))
	defer srv.Close()

	r, err := retry.New(retry.WithMaxAttemps(3))
	require.NoError(t, err)
	c := &Client{APIKey: "key", BaseURL: srv.URL, HTTP: srv.Client(), Retrier: r}
	a, err := c.GetAssistant(context.Background(), "asst_1")
	require.NoError(t, err)
	assert.Equal(t, "asst_1", a.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCreateCallIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, err := retry.New(retry.WithMaxAttemps(3))
	require.NoError(t, err)
	c := &Client{APIKey: "key", BaseURL: srv.URL + "/", HTTP: srv.Client(), Retrier: r}
	c.unversioned.Store(true)
	_, err = c.CreateCall(context.Background(), "asst_1", "pn_1", "+393331234567")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestUnconfiguredClient(t *testing.T) {
	var c Client
	_, err := c.ListPhoneNumbers(context.Background())
	assert.True(t, errors.Is(err, domain.ErrNotConfigured))
}

func TestOutputSchema(t *testing.T) {
	ch := domain.MessagingChannel{
		Number: "+393331234567",
		Fields: []domain.OutputField{
			{Name: "nome", Label: "Nome cliente", Type: domain.FieldText, Required: true},
			{Name: "persone", Type: domain.FieldNumber},
			{Name: "urgente", Type: domain.FieldBoolean},
			{Name: "servizio", Type: domain.FieldSelect, Options: []string{"taglio", "colore"}},
		},
	}
	out := OutputSchema(ch)
	require.Len(t, out, 1)
	s := out[0].Schema
	assert.Equal(t, "lead_data", out[0].Name)
	assert.Equal(t, "string", s.Properties["nome"].Type)
	assert.Equal(t, "number", s.Properties["persone"].Type)
	assert.Equal(t, "boolean", s.Properties["urgente"].Type)
	assert.Equal(t, []string{"taglio", "colore"}, s.Properties["servizio"].Enum)
	assert.Equal(t, []string{"nome"}, s.Required)

	assert.Nil(t, OutputSchema(domain.MessagingChannel{Number: "x"}))
}
