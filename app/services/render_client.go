package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amirphl/Hachiko/models"
	"github.com/sony/gobreaker/v2"
)

// ErrRenderUnavailable is returned while the render backend circuit is open
var ErrRenderUnavailable = errors.New("render backend unavailable")

// RenderClient exports one artifact from the external rendering service
type RenderClient interface {
	Render(ctx context.Context, artifact *models.RenderedArtifact, maxHeight *int) ([]byte, error)
}

// HTTPRenderClient implements RenderClient against the render backend's
// export endpoint. Calls go through a circuit breaker so a dead backend
// fails fast instead of burning the batch timeout per item.
type HTTPRenderClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewHTTPRenderClient creates a new render backend client
func NewHTTPRenderClient(baseURL, apiKey string, timeout time.Duration) *HTTPRenderClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "render-backend",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &HTTPRenderClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

type renderRequest struct {
	ReportID  uint   `json:"report_id"`
	Format    string `json:"format"`
	MaxHeight *int   `json:"max_height,omitempty"`
}

// Render exports one artifact and returns the rendered bytes
func (c *HTTPRenderClient) Render(ctx context.Context, artifact *models.RenderedArtifact, maxHeight *int) ([]byte, error) {
	content, err := c.breaker.Execute(func() ([]byte, error) {
		return c.doRender(ctx, artifact, maxHeight)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrRenderUnavailable, err)
		}
		return nil, err
	}
	return content, nil
}

func (c *HTTPRenderClient) doRender(ctx context.Context, artifact *models.RenderedArtifact, maxHeight *int) ([]byte, error) {
	payload, _ := json.Marshal(renderRequest{
		ReportID:  artifact.ReportID,
		Format:    string(artifact.Format),
		MaxHeight: maxHeight,
	})

	url := c.baseURL + "/api/v1/exports"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("render export http status: %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read render response body: %w", err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("render backend returned empty content")
	}

	return content, nil
}
