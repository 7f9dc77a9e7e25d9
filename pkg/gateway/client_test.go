package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Path          string
	Authorization string
	Body          map[string]any
}

type fakeAPI struct {
	server   *httptest.Server
	hits     atomic.Int32
	requests chan recordedRequest
}

// newFakeAPI answers with statuses in order, then 200 for every later call.
func newFakeAPI(t *testing.T, statuses ...int) *fakeAPI {
	t.Helper()

	api := &fakeAPI{requests: make(chan recordedRequest, 16)}

	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(api.hits.Add(1))

		raw, _ := io.ReadAll(r.Body)

		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		select {
		case api.requests <- recordedRequest{Path: r.URL.Path, Authorization: r.Header.Get("Authorization"), Body: body}:
		default:
		}

		if n <= len(statuses) && statuses[n-1] != http.StatusOK {
			w.WriteHeader(statuses[n-1])
			_, _ = w.Write([]byte(`{"error":{"message":"upstream said no","type":"OAuthException","code":131056}}`))

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","contacts":[{"input":"5511999","wa_id":"5511999"}],"messages":[{"id":"wamid.TEST"}]}`))
	}))
	t.Cleanup(api.server.Close)

	return api
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:            baseURL,
		APIVersion:         "v18.0",
		PhoneNumberID:      "PN1",
		BusinessAccountID:  "WABA1",
		AccessToken:        "token-123",
		WebhookVerifyToken: "verify-me",
		AppSecret:          "app-secret",
		RetryBaseDelay:     time.Millisecond,
		MaxRetries:         3,
	}
}

func newTestClient(t *testing.T, api *fakeAPI, mutate ...func(*Config)) *Client {
	t.Helper()

	cfg := testConfig(api.server.URL)
	for _, m := range mutate {
		m(&cfg)
	}

	client, err := NewClient(cfg)
	require.NoError(t, err)

	return client
}

func TestNewClient_MissingCredentials(t *testing.T) {
	t.Parallel()

	tests := map[string]func(*Config){
		"phone number id":      func(c *Config) { c.PhoneNumberID = "" },
		"business account id":  func(c *Config) { c.BusinessAccountID = "" },
		"access token":         func(c *Config) { c.AccessToken = "" },
		"webhook verify token": func(c *Config) { c.WebhookVerifyToken = "" },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig("http://localhost")
			mutate(&cfg)

			client, err := NewClient(cfg)
			require.ErrorIs(t, err, ErrMissingCredentials)
			assert.Contains(t, err.Error(), name)
			assert.Nil(t, client)
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	cfg := testConfig("")
	cfg.APIVersion = ""
	cfg.RateLimitPerMinute = 0
	cfg.RetryBaseDelay = 0

	client, err := NewClient(cfg)
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, client.Config().BaseURL)
	assert.Equal(t, DefaultAPIVersion, client.Config().APIVersion)
	assert.Equal(t, DefaultRateLimitPerMinute, client.Config().RateLimitPerMinute)
	assert.Equal(t, DefaultRetryBaseDelay, client.Config().RetryBaseDelay)
	assert.Equal(t, DefaultMaxRetries, client.Config().MaxRetries)
}

func TestClient_SendText(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api)

	id, err := client.SendText(context.Background(), "5511999", "Hello Maria", true)
	require.NoError(t, err)
	assert.Equal(t, "wamid.TEST", id)

	req := <-api.requests
	assert.Equal(t, "/v18.0/PN1/messages", req.Path)
	assert.Equal(t, "Bearer token-123", req.Authorization)
	assert.Equal(t, "whatsapp", req.Body["messaging_product"])
	assert.Equal(t, "5511999", req.Body["to"])
	assert.Equal(t, "text", req.Body["type"])
	assert.Equal(t, map[string]any{"body": "Hello Maria", "preview_url": true}, req.Body["text"])
}

func TestClient_SendTemplate(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api)

	_, err := client.SendTemplate(context.Background(), "5511999", "welcome", "pt_BR", []string{"Maria", "Acme"})
	require.NoError(t, err)

	req := <-api.requests
	assert.Equal(t, "template", req.Body["type"])

	tmpl, ok := req.Body["template"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "welcome", tmpl["name"])
	assert.Equal(t, map[string]any{"code": "pt_BR"}, tmpl["language"])

	components, ok := tmpl["components"].([]any)
	require.True(t, ok)
	require.Len(t, components, 1)

	params := components[0].(map[string]any)["parameters"].([]any)
	assert.Len(t, params, 2)
	assert.Equal(t, map[string]any{"type": "text", "text": "Maria"}, params[0])
}

func TestClient_SendMediaAndLocation(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api)
	ctx := context.Background()

	_, err := client.SendImage(ctx, "5511999", "https://cdn.example.com/a.png", "look")
	require.NoError(t, err)

	req := <-api.requests
	assert.Equal(t, map[string]any{"link": "https://cdn.example.com/a.png", "caption": "look"}, req.Body["image"])

	_, err = client.SendDocument(ctx, "5511999", "https://cdn.example.com/a.pdf", "", "proposal.pdf")
	require.NoError(t, err)

	req = <-api.requests
	assert.Equal(t, map[string]any{"link": "https://cdn.example.com/a.pdf", "filename": "proposal.pdf"}, req.Body["document"])

	_, err = client.SendLocation(ctx, "5511999", Location{Latitude: -23.5, Longitude: -46.6, Name: "Office"})
	require.NoError(t, err)

	req = <-api.requests
	loc := req.Body["location"].(map[string]any)
	assert.InDelta(t, -23.5, loc["latitude"], 0.0001)
	assert.Equal(t, "Office", loc["name"])
}

func TestClient_SendButtons(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api)

	_, err := client.SendButtons(context.Background(), "5511999", "Book a call?", []Button{
		{ID: "yes", Title: "Yes"},
		{ID: "no", Title: "Not now"},
	})
	require.NoError(t, err)

	req := <-api.requests
	interactive := req.Body["interactive"].(map[string]any)
	assert.Equal(t, "button", interactive["type"])

	buttons := interactive["action"].(map[string]any)["buttons"].([]any)
	require.Len(t, buttons, 2)
	assert.Equal(t, map[string]any{"type": "reply", "reply": map[string]any{"id": "yes", "title": "Yes"}}, buttons[0])
}

func TestClient_SendButtons_TooMany(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api)

	_, err := client.SendButtons(context.Background(), "5511999", "Pick", []Button{
		{ID: "1", Title: "a"}, {ID: "2", Title: "b"}, {ID: "3", Title: "c"}, {ID: "4", Title: "d"},
	})
	require.ErrorIs(t, err, ErrInvalidMessage)
	assert.Equal(t, int32(0), api.hits.Load())
}

func TestClient_SendList(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api)

	_, err := client.SendList(context.Background(), "5511999", "Choose a plan", "Plans", []Section{
		{Title: "Monthly", Rows: []Row{{ID: "basic", Title: "Basic", Description: "1 seat"}}},
	})
	require.NoError(t, err)

	req := <-api.requests
	interactive := req.Body["interactive"].(map[string]any)
	assert.Equal(t, "list", interactive["type"])

	action := interactive["action"].(map[string]any)
	assert.Equal(t, "Plans", action["button"])
	assert.Len(t, action["sections"], 1)
}

func TestClient_MarkRead(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api)

	require.NoError(t, client.MarkRead(context.Background(), "wamid.IN"))

	req := <-api.requests
	assert.Equal(t, map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        "wamid.IN",
	}, req.Body)
}

func TestClient_RateLimitRejectsWithoutNetworkCall(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api, func(c *Config) { c.RateLimitPerMinute = 3 })
	ctx := context.Background()

	for range 3 {
		_, err := client.SendText(ctx, "5511999", "hi", false)
		require.NoError(t, err)
	}

	_, err := client.SendText(ctx, "5511999", "hi", false)
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(3), api.hits.Load())
}

func TestClient_Retries429UpToMaxRetries(t *testing.T) {
	api := newFakeAPI(t, 429, 429, 429, 429, 429)
	client := newTestClient(t, api)

	_, err := client.SendText(context.Background(), "5511999", "hi", false)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "upstream said no", apiErr.Message)
	assert.Equal(t, int32(4), api.hits.Load(), "one call plus three retries")
}

func TestClient_ZeroValueRetriesUseDefault(t *testing.T) {
	api := newFakeAPI(t, 429, 429, 429, 429, 429)
	client := newTestClient(t, api, func(c *Config) { c.MaxRetries = 0 })

	_, err := client.SendText(context.Background(), "5511999", "hi", false)
	require.Error(t, err)
	assert.Equal(t, int32(1+DefaultMaxRetries), api.hits.Load())
}

func TestClient_NoRetries(t *testing.T) {
	api := newFakeAPI(t, 429, 429)
	client := newTestClient(t, api, func(c *Config) { c.MaxRetries = NoRetries })

	_, err := client.SendText(context.Background(), "5511999", "hi", false)
	require.Error(t, err)
	assert.Equal(t, int32(1), api.hits.Load())
	assert.Zero(t, client.Config().MaxRetries)
}

func TestClient_Retries5xxThenSucceeds(t *testing.T) {
	api := newFakeAPI(t, 503, 500)
	client := newTestClient(t, api)

	id, err := client.SendText(context.Background(), "5511999", "hi", false)
	require.NoError(t, err)
	assert.Equal(t, "wamid.TEST", id)
	assert.Equal(t, int32(3), api.hits.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound} {
		api := newFakeAPI(t, status)
		client := newTestClient(t, api)

		_, err := client.SendText(context.Background(), "5511999", "hi", false)
		require.Error(t, err)
		assert.Equal(t, status, StatusCode(err))
		assert.False(t, IsRetryable(err))
		assert.Equal(t, int32(1), api.hits.Load())
	}
}

func TestClient_RetryStopsOnContextCancel(t *testing.T) {
	api := newFakeAPI(t, 500, 500, 500, 500)
	client := newTestClient(t, api, func(c *Config) { c.RetryBaseDelay = time.Hour })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.SendText(ctx, "5511999", "hi", false)
	require.Error(t, err)
	assert.Equal(t, int32(1), api.hits.Load())
}
