package assignment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
)

const assignmentPath = "/model-assignments/for-sdk"

// WSTransport fetches assignments over a websocket push channel for
// near-real-time updates (Connect), falling back to a plain HTTP GET for
// forced refreshes (FetchOnce). Grounded on
// pkg/provider/stt/deepgram.Provider.StartStream's websocket.Dial-then-
// read-loop idiom.
type WSTransport struct {
	// BaseURL is the backend's address, e.g. "https://assignments.example.com".
	// Its scheme is swapped for "https"/"wss" as each method needs.
	BaseURL string

	// HTTPClient is used for FetchOnce; http.DefaultClient if nil.
	HTTPClient *http.Client
}

func (t *WSTransport) httpClient() *http.Client {
	if t.HTTPClient != nil {
		return t.HTTPClient
	}
	return http.DefaultClient
}

func (t *WSTransport) endpointURL(scheme, deviceType, platform string) (string, error) {
	base, err := url.Parse(t.BaseURL)
	if err != nil {
		return "", fmt.Errorf("assignment: parse base URL: %w", err)
	}
	base.Scheme = scheme
	base.Path = assignmentPath
	q := base.Query()
	q.Set("device_type", deviceType)
	q.Set("platform", platform)
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// FetchOnce performs a synchronous GET against the HTTP assignments
// endpoint.
func (t *WSTransport) FetchOnce(ctx context.Context, deviceType, platform string) ([]Descriptor, error) {
	endpoint, err := t.endpointURL("https", deviceType, platform)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("assignment: build request: %w", err)
	}
	resp, err := t.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("assignment: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assignment: fetch: unexpected status %d", resp.StatusCode)
	}
	var descriptors []Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&descriptors); err != nil {
		return nil, fmt.Errorf("assignment: decode response: %w", err)
	}
	return descriptors, nil
}

// Connect opens a websocket to the assignments endpoint and streams
// decoded batches until the connection closes or ctx is cancelled. The
// returned channel is closed when the read loop exits for any reason.
func (t *WSTransport) Connect(ctx context.Context, deviceType, platform string) (<-chan []Descriptor, error) {
	endpoint, err := t.endpointURL("wss", deviceType, platform)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("assignment: dial: %w", err)
	}

	ch := make(chan []Descriptor, 1)
	go func() {
		defer close(ch)
		defer conn.Close(websocket.StatusNormalClosure, "assignment watch closed")
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var descriptors []Descriptor
			if err := json.Unmarshal(data, &descriptors); err != nil {
				continue
			}
			select {
			case ch <- descriptors:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

var _ StreamTransport = (*WSTransport)(nil)
