package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// errAPI wraps an error response returned by the gobfd daemon's JSON API.
var errAPI = errors.New("gobfd api error")

// apiClient is a thin JSON/HTTP client for the daemon's BFD session API. It
// replaces the ConnectRPC client the CLI used to generate, since the
// generated stubs require running protoc and that isn't available here.
type apiClient struct {
	baseURL string
	hc      *http.Client
}

func newAPIClient(addr string) *apiClient {
	return &apiClient{
		baseURL: "http://" + strings.TrimSuffix(addr, "/"),
		hc:      http.DefaultClient,
	}
}

// sessionWire mirrors internal/server's sessionView JSON shape.
type sessionWire struct {
	PeerAddress           string `json:"peer_address"`
	LocalAddress          string `json:"local_address"`
	InterfaceName         string `json:"interface_name"`
	Type                  string `json:"type"`
	LocalState            string `json:"local_state"`
	RemoteState           string `json:"remote_state"`
	LocalDiagnostic       string `json:"local_diagnostic"`
	LocalDiscriminator    uint32 `json:"local_discriminator"`
	RemoteDiscriminator   uint32 `json:"remote_discriminator"`
	DesiredMinTxInterval  int64  `json:"desired_min_tx_interval_ns"`
	RequiredMinRxInterval int64  `json:"required_min_rx_interval_ns"`
	DetectMultiplier      uint32 `json:"detect_multiplier"`
}

// addSessionWire mirrors internal/server's sessionRequest JSON shape.
type addSessionWire struct {
	PeerAddress           string `json:"peer_address"`
	LocalAddress          string `json:"local_address"`
	InterfaceName         string `json:"interface_name"`
	Type                  string `json:"type"`
	DesiredMinTxInterval  int64  `json:"desired_min_tx_interval_ns"`
	RequiredMinRxInterval int64  `json:"required_min_rx_interval_ns"`
	DetectMultiplier      uint32 `json:"detect_multiplier"`
}

// sessionEventWire mirrors internal/server's sessionEvent JSON shape.
type sessionEventWire struct {
	Type          string      `json:"type"`
	Session       sessionWire `json:"session"`
	PreviousState string      `json:"previous_state,omitempty"`
	Timestamp     string      `json:"timestamp"`
}

type apiErrorBody struct {
	Error string `json:"error"`
}

func (c *apiClient) ListSessions(ctx context.Context) ([]sessionWire, error) {
	var out []sessionWire
	if err := c.do(ctx, http.MethodGet, "/api/v1/bfd/sessions", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) GetSession(ctx context.Context, identifier string) (sessionWire, error) {
	var out sessionWire
	path := "/api/v1/bfd/sessions/" + identifier
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return sessionWire{}, err
	}
	return out, nil
}

func (c *apiClient) AddSession(ctx context.Context, req addSessionWire) (sessionWire, error) {
	var out sessionWire
	if err := c.do(ctx, http.MethodPost, "/api/v1/bfd/sessions", req, http.StatusCreated, &out); err != nil {
		return sessionWire{}, err
	}
	return out, nil
}

func (c *apiClient) DeleteSession(ctx context.Context, discr uint32) error {
	path := fmt.Sprintf("/api/v1/bfd/sessions/%d", discr)
	return c.do(ctx, http.MethodDelete, path, nil, http.StatusNoContent, nil)
}

// do performs an HTTP request, decoding the JSON body on success and the
// apiErrorBody on any unexpected status code.
func (c *apiClient) do(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	return c.doStatus(ctx, method, path, body, wantStatus, out)
}

func (c *apiClient) doStatus(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	var reqBody *strings.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = strings.NewReader(string(data))
	} else {
		reqBody = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if wantStatus >= 0 && resp.StatusCode != wantStatus {
		var errBody apiErrorBody
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error == "" {
			errBody.Error = resp.Status
		}
		return fmt.Errorf("%w: %s", errAPI, errBody.Error)
	}
	if wantStatus < 0 && resp.StatusCode >= 400 {
		var errBody apiErrorBody
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error == "" {
			errBody.Error = resp.Status
		}
		return fmt.Errorf("%w: %s", errAPI, errBody.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// eventStream reads newline-delimited session events from an open response
// body until the context is canceled or the connection closes.
type eventStream struct {
	body   *http.Response
	scan   *bufio.Scanner
	cancel context.CancelFunc
}

// WatchSessions opens the daemon's NDJSON session event stream. Callers must
// call Close when done.
func (c *apiClient) WatchSessions(ctx context.Context, includeCurrent bool) (*eventStream, error) {
	ctx, cancel := context.WithCancel(ctx)

	path := "/api/v1/bfd/sessions/watch"
	if includeCurrent {
		path += "?include_current=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		cancel()
		var errBody apiErrorBody
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return nil, fmt.Errorf("%w: %s", errAPI, errBody.Error)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &eventStream{body: resp, scan: scanner, cancel: cancel}, nil
}

// Next blocks for the next event. It returns false once the stream ends or
// the context backing it is canceled; check Err to distinguish the two.
func (s *eventStream) Next() (sessionEventWire, bool) {
	if !s.scan.Scan() {
		return sessionEventWire{}, false
	}
	var ev sessionEventWire
	if err := json.Unmarshal(s.scan.Bytes(), &ev); err != nil {
		return sessionEventWire{}, false
	}
	return ev, true
}

func (s *eventStream) Err() error {
	return s.scan.Err()
}

func (s *eventStream) Close() {
	s.cancel()
	s.body.Body.Close()
}
