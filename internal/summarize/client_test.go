package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_Summarize_ReturnsFirstChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "gpt-summarizer", req.Model)
		require.True(t, strings.Contains(req.Messages[0].Content, "long article text"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: "a short summary"}}},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "gpt-summarizer"})
	summary, err := c.Summarize(context.Background(), "long article text")
	require.NoError(t, err)
	require.Equal(t, "a short summary", summary)
}

func TestClient_Summarize_ErrorsOnEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "gpt-summarizer"})
	_, err := c.Summarize(context.Background(), "text")
	require.ErrorContains(t, err, "no choices")
}
