// Package client is a small Go client for the evalscribe HTTP API,
// including the SSE progress stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/evalscribe/evalscribe/internal/session"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: http.DefaultClient,
	}
}

// StartGenerationRequest mirrors POST /api/generations.
type StartGenerationRequest struct {
	ID          string `json:"id,omitempty"`
	StudentName string `json:"student_name"`
	Gender      string `json:"gender,omitempty"`
	Curriculum  string `json:"curriculum"`
	Transcript  string `json:"transcript"`
}

func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) ListCurricula(ctx context.Context) ([]string, error) {
	resp, err := c.get(ctx, "/api/curricula")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list curricula: status %d", resp.StatusCode)
	}

	var body struct {
		Curricula []string `json:"curricula"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Curricula, nil
}

func (c *Client) ListGenerations(ctx context.Context) ([]session.Generation, error) {
	resp, err := c.get(ctx, "/api/generations")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list generations: status %d", resp.StatusCode)
	}

	var body struct {
		Generations []session.Generation `json:"generations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Generations, nil
}

func (c *Client) GetGeneration(ctx context.Context, id string) (session.Generation, error) {
	resp, err := c.get(ctx, "/api/generations/"+id)
	if err != nil {
		return session.Generation{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return session.Generation{}, fmt.Errorf("get generation: status %d", resp.StatusCode)
	}

	var gen session.Generation
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return session.Generation{}, err
	}
	return gen, nil
}

// CancelGeneration requests cancellation of a running generation.
func (c *Client) CancelGeneration(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/generations/"+id+"/cancel", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("cancel generation: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.HTTPClient.Do(req)
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	return c.HTTPClient.Do(req)
}
