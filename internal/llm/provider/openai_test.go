package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evalscribe/evalscribe/internal/llm/models"
)

// slowStreamServer emits one delta chunk, then holds the stream open
// until the client disconnects.
func slowStreamServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		chunk := `{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o",` +
			`"choices":[{"index":0,"delta":{"content":"partial"}}]}`
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		flusher.Flush()

		<-r.Context().Done()
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestGenerateExitsOnMidStreamCancel(t *testing.T) {
	t.Parallel()

	ts := slowStreamServer(t)
	client := newOpenAIClient(providerClientOptions{
		apiKey:  "test-key",
		baseURL: ts.URL + "/",
		model:   models.Model{APIModel: "gpt-4o", DefaultMaxTokens: 256},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := client.Generate(ctx, Request{Prompt: "evaluate"})

	select {
	case event := <-events:
		require.Equal(t, EventContentDelta, event.Type)
		require.Equal(t, "partial", event.Content)
	case <-time.After(5 * time.Second):
		t.Fatal("no delta received from the stream")
	}

	// Cancel and stop receiving, the way a caller that observed the
	// cancellation abandons the channel. The producer must still wind
	// down and close instead of parking on its terminal send.
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, open := <-events:
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "event channel must close after cancellation")
}
