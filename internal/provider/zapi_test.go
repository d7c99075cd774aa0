package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapleopard/campaign-dispatcher/internal/provider"
)

func TestZAPISenderSend(t *testing.T) {
	var gotPath, gotToken, gotKey string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("Client-Token")
		gotKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]string{"messageId": "zapi-123"})
	}))
	defer srv.Close()

	sender := provider.NewZAPISender(srv.URL, "secret-token")
	result, err := sender.Send(context.Background(), provider.SendRequest{
		To:             "5511987654321",
		Body:           "Oi Alice!",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "zapi-123", result.ProviderMessageID)
	assert.Equal(t, "/send-text", gotPath)
	assert.Equal(t, "secret-token", gotToken)
	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "5511987654321", gotBody["phone"])
	assert.Equal(t, "Oi Alice!", gotBody["message"])
}

func TestZAPISenderClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid phone"})
	}))
	defer srv.Close()

	sender := provider.NewZAPISender(srv.URL, "secret-token")
	_, err := sender.Send(context.Background(), provider.SendRequest{To: "123", Body: "Oi"})

	require.Error(t, err)
	assert.True(t, provider.IsPermanent(err))
	assert.Contains(t, err.Error(), "invalid phone")
}

func TestZAPISenderServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sender := provider.NewZAPISender(srv.URL, "secret-token")
	_, err := sender.Send(context.Background(), provider.SendRequest{To: "5511987654321", Body: "Oi"})

	require.Error(t, err)
	assert.False(t, provider.IsPermanent(err))
}

func TestMockSenderRecords(t *testing.T) {
	sender := provider.NewMockSender(0)

	result, err := sender.Send(context.Background(), provider.SendRequest{To: "5511987654321", Body: "Oi"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.ProviderMessageID)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "5511987654321", sent[0].To)
}
