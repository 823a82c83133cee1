package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ansari/internal/config"
)

func TestModelLister_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[
			{"id":"gpt-4o","object":"model","created":1715367049,"owned_by":"system"},
			{"id":"gpt-4","object":"model","created":1687882411,"owned_by":"openai"}
		]}`))
	}))
	defer server.Close()

	lister := NewModelLister(config.LLMConfig{APIKey: "test-key", BaseURL: server.URL})
	models, err := lister.ListModels(context.Background())
	require.NoError(t, err)

	require.Len(t, models, 2)
	assert.Equal(t, "gpt-4", models[0].ID)
	assert.Equal(t, "openai", models[0].OwnedBy)
	assert.Equal(t, "gpt-4o", models[1].ID)
	assert.Equal(t, int64(1715367049), models[1].Created)
}

func TestModelLister_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid key"}}`))
	}))
	defer server.Close()

	lister := NewModelLister(config.LLMConfig{APIKey: "bad", BaseURL: server.URL})
	_, err := lister.ListModels(context.Background())
	assert.Error(t, err)
}
