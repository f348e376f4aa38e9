package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const maxLookupResponseSize = 4 << 10

type ipLookupResponse struct {
	IP string `json:"ip"`
}

// HTTPIPLookup asks a JSON endpoint of the form {"ip": "..."} for the caller's
// public address. One attempt per call; no retry.
type HTTPIPLookup struct {
	url        string
	httpClient *http.Client
}

func NewHTTPIPLookup(url string, timeout time.Duration) *HTTPIPLookup {
	return &HTTPIPLookup{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (l *HTTPIPLookup) LookupIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ip lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ip lookup returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLookupResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read ip lookup response: %w", err)
	}

	var out ipLookupResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode ip lookup response: %w", err)
	}
	if net.ParseIP(out.IP) == nil {
		return "", fmt.Errorf("ip lookup returned invalid address %q", out.IP)
	}
	return out.IP, nil
}
