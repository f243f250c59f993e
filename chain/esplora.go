// Package chain reads chain state from an esplora HTTP API.
package chain

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Esplora is a minimal esplora REST client.
type Esplora struct {
	baseURL string
	client  *http.Client
}

// NewEsplora returns a client for the API rooted at baseURL.
func NewEsplora(baseURL string) *Esplora {
	return &Esplora{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// TipHeight returns the height of the best block known to the server.
func (e *Esplora) TipHeight(ctx context.Context) (uint32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/blocks/tip/height", nil)
	if err != nil {
		return 0, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("esplora tip height: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return 0, fmt.Errorf("esplora tip height: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("esplora tip height: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	height, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("esplora tip height: unexpected body %q", body)
	}
	return uint32(height), nil
}
