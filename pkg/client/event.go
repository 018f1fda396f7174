package client

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/evalscribe/evalscribe/internal/generation"
)

// StartGeneration starts a generation and returns the decoded SSE event
// stream. The channel closes when the server closes the stream; cancel
// ctx to disconnect early.
func (c *Client) StartGeneration(ctx context.Context, req StartGenerationRequest) (<-chan generation.ProgressEvent, error) {
	resp, err := c.postJSON(ctx, "/api/generations", req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("start generation: status %d", resp.StatusCode)
	}

	events := make(chan generation.ProgressEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")

			event, err := generation.DecodeProgressEvent([]byte(data))
			if err != nil {
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
