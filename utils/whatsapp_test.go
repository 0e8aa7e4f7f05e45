package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvolutionHasWhatsApp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/whatsappNumbers/clave", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("apikey"))

		var body struct {
			Numbers []string `json:"numbers"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Numbers, 1)

		exists := body.Numbers[0] == "523312345678"
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{{"exists": exists, "number": body.Numbers[0]}})
	}))
	defer srv.Close()

	client := NewEvolutionClient(srv.URL+"/", "secret", "clave")

	has, err := client.HasWhatsApp(context.Background(), "523312345678")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = client.HasWhatsApp(context.Background(), "523300000000")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestEvolutionSendText(t *testing.T) {
	statuses := []int{http.StatusCreated, http.StatusOK, http.StatusBadRequest}
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/message/sendText/clave", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "523312345678", body["number"])
		assert.Equal(t, "hola", body["text"])

		w.WriteHeader(statuses[calls])
		calls++
	}))
	defer srv.Close()

	client := NewEvolutionClient(srv.URL, "secret", "clave")
	assert.NoError(t, client.SendText(context.Background(), "523312345678", "hola"))
	assert.NoError(t, client.SendText(context.Background(), "523312345678", "hola"))
	assert.Error(t, client.SendText(context.Background(), "523312345678", "hola"))
}

func TestWebsiteFetcherExtractsBodyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><style>body{}</style></head><body>
			<h1>Clinica   Sol</h1>
			<script>track()</script>
			<p>Ortodoncia y limpieza</p>
		</body></html>`))
	}))
	defer srv.Close()

	text, err := NewWebsiteFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Clinica Sol Ortodoncia y limpieza", text)
}

func TestWebsiteFetcherRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewWebsiteFetcher().Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}
