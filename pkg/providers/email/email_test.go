package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leadflow/leadflow/pkg/leads"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *leads.MemoryStore {
	t.Helper()

	store := leads.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &models.Lead{ID: "L1", Email: "maria@acme.com", FirstName: "Maria"}))
	require.NoError(t, store.Save(context.Background(), &models.Lead{ID: "L2", Phone: "5511999"}))

	return store
}

func TestProvider_Send(t *testing.T) {
	var received message

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"id":"email-123"}`))
	}))
	defer server.Close()

	provider := NewProvider(Config{Endpoint: server.URL, APIKey: "key-1", From: "team@leadflow.dev"}, newStore(t))

	result, err := provider.Send(context.Background(), models.EmailSpec{
		Subject: "Welcome {{ .lead.first_name }}",
		Body:    "<p>Thanks for reaching out via {{ .trigger.form }}</p>",
	}, "L1", map[string]any{models.ContextKeyTrigger: map[string]any{"form": "contact"}})
	require.NoError(t, err)

	assert.Equal(t, "email-123", result.MessageID)
	assert.Equal(t, "maria@acme.com", result.Recipient)
	assert.Equal(t, "Welcome Maria", received.Subject)
	assert.Equal(t, "<p>Thanks for reaching out via contact</p>", received.HTML)
	assert.Equal(t, "team@leadflow.dev", received.From)
}

func TestProvider_MissingEmailIsRecoverable(t *testing.T) {
	provider := NewProvider(Config{Endpoint: "http://127.0.0.1:1"}, newStore(t))

	_, err := provider.Send(context.Background(), models.EmailSpec{Subject: "hi"}, "L2", nil)
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeEmailSendError))
	assert.True(t, models.IsRecoverable(err))
}

func TestProvider_APIErrorIsRecoverable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	provider := NewProvider(Config{Endpoint: server.URL}, newStore(t))

	_, err := provider.Send(context.Background(), models.EmailSpec{Subject: "hi", Body: "there"}, "L1", nil)
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeEmailSendError))
	assert.Contains(t, err.Error(), "HTTP 422")
}
