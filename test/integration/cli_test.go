//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/holo-suite/holod/internal/bfd"
	"github.com/holo-suite/holod/internal/server"
)

// cliTestEnv bundles the in-process server and client for CLI integration tests.
type cliTestEnv struct {
	hc      *http.Client
	baseURL string
	mgr     *bfd.Manager
}

// newCLITestEnv creates an in-process JSON/HTTP server backed by a real
// bfd.Manager. This mirrors the gobfdctl client setup without requiring
// a running daemon.
func newCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	mgr := bfd.NewManager(logger)
	t.Cleanup(mgr.Close)

	path, handler := server.New(mgr, nil, nil, logger)
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &cliTestEnv{
		hc:      srv.Client(),
		baseURL: srv.URL,
		mgr:     mgr,
	}
}

// addTestSession adds a BFD session and returns its discriminator.
func (env *cliTestEnv) addTestSession(t *testing.T, peer, local string) uint32 {
	t.Helper()

	body, _ := json.Marshal(wireSession{
		PeerAddress:           peer,
		LocalAddress:          local,
		Type:                  "single_hop",
		DesiredMinTxInterval:  int64(time.Second),
		RequiredMinRxInterval: int64(time.Second),
		DetectMultiplier:      3,
	})

	resp, err := env.hc.Post(env.baseURL+"/api/v1/bfd/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("AddSession(%s -> %s): %v", local, peer, err)
	}
	defer resp.Body.Close()

	var added wireSession
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		t.Fatalf("decode AddSession response: %v", err)
	}
	if added.LocalDiscriminator == 0 {
		t.Fatal("AddSession returned zero discriminator")
	}

	return added.LocalDiscriminator
}

func (env *cliTestEnv) listSessions(t *testing.T) []wireSession {
	t.Helper()

	resp, err := env.hc.Get(env.baseURL + "/api/v1/bfd/sessions")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	defer resp.Body.Close()

	var out []wireSession
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode ListSessions response: %v", err)
	}
	return out
}

func (env *cliTestEnv) deleteSession(t *testing.T, discr uint32) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/v1/bfd/sessions/%d", env.baseURL, discr), nil)
	if err != nil {
		t.Fatalf("build delete request: %v", err)
	}
	resp, err := env.hc.Do(req)
	if err != nil {
		t.Fatalf("DeleteSession(%d): %v", discr, err)
	}
	return resp
}

func (env *cliTestEnv) getSession(t *testing.T, id string) (*http.Response, wireSession) {
	t.Helper()

	resp, err := env.hc.Get(fmt.Sprintf("%s/api/v1/bfd/sessions/%s", env.baseURL, id))
	if err != nil {
		t.Fatalf("GetSession(%s): %v", id, err)
	}
	defer resp.Body.Close()

	var out wireSession
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode GetSession response: %v", err)
		}
	}
	return resp, out
}

// TestCLISessionAddListShowDelete exercises the full session lifecycle
// through the JSON API, validating that the server returns correct data for
// each operation. This is the in-process equivalent of running gobfdctl
// commands: session add, session list, session show, session delete.
func TestCLISessionAddListShowDelete(t *testing.T) {
	env := newCLITestEnv(t)

	// --- session add ---
	discr := env.addTestSession(t, "192.168.1.1", "192.168.1.2")

	// --- session list ---
	sessions := env.listSessions(t)
	if got := len(sessions); got != 1 {
		t.Fatalf("ListSessions count = %d, want 1", got)
	}

	sess := sessions[0]
	if sess.PeerAddress != "192.168.1.1" {
		t.Errorf("ListSessions[0].PeerAddress = %q, want %q", sess.PeerAddress, "192.168.1.1")
	}
	if sess.LocalDiscriminator != discr {
		t.Errorf("ListSessions[0].LocalDiscriminator = %d, want %d", sess.LocalDiscriminator, discr)
	}

	// --- session show (by discriminator) ---
	resp, gotSess := env.getSession(t, fmt.Sprintf("%d", discr))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GetSession by discr status = %d, want 200", resp.StatusCode)
	}
	if gotSess.PeerAddress != "192.168.1.1" {
		t.Errorf("GetSession.PeerAddress = %q, want %q", gotSess.PeerAddress, "192.168.1.1")
	}
	if gotSess.LocalAddress != "192.168.1.2" {
		t.Errorf("GetSession.LocalAddress = %q, want %q", gotSess.LocalAddress, "192.168.1.2")
	}
	if gotSess.DetectMultiplier != 3 {
		t.Errorf("GetSession.DetectMultiplier = %d, want 3", gotSess.DetectMultiplier)
	}

	// --- session show (by peer address) ---
	resp2, gotByPeer := env.getSession(t, "192.168.1.1")
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("GetSession by peer status = %d, want 200", resp2.StatusCode)
	}
	if gotByPeer.LocalDiscriminator != discr {
		t.Errorf("GetSession by peer: discriminator = %d, want %d", gotByPeer.LocalDiscriminator, discr)
	}

	// --- session delete ---
	delResp := env.deleteSession(t, discr)
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("DeleteSession status = %d, want 204", delResp.StatusCode)
	}

	// Verify deletion.
	if got := len(env.listSessions(t)); got != 0 {
		t.Fatalf("ListSessions after delete count = %d, want 0", got)
	}
}

// TestCLIMultipleSessions verifies that adding multiple sessions and listing
// them returns all sessions correctly.
func TestCLIMultipleSessions(t *testing.T) {
	env := newCLITestEnv(t)

	discr1 := env.addTestSession(t, "10.0.0.1", "10.0.0.100")
	discr2 := env.addTestSession(t, "10.0.0.2", "10.0.0.100")
	discr3 := env.addTestSession(t, "10.0.0.3", "10.0.0.100")

	sessions := env.listSessions(t)
	if got := len(sessions); got != 3 {
		t.Fatalf("ListSessions count = %d, want 3", got)
	}

	discrSet := make(map[uint32]bool, 3)
	for _, s := range sessions {
		discrSet[s.LocalDiscriminator] = true
	}

	for _, want := range []uint32{discr1, discr2, discr3} {
		if !discrSet[want] {
			t.Errorf("ListSessions missing discriminator %d", want)
		}
	}

	// Delete one session and verify count decreases.
	resp := env.deleteSession(t, discr2)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DeleteSession(%d) status = %d, want 204", discr2, resp.StatusCode)
	}

	if got := len(env.listSessions(t)); got != 2 {
		t.Fatalf("ListSessions after delete count = %d, want 2", got)
	}
}

// TestCLIOutputFormats verifies that session data can be rendered in
// all supported output formats (JSON, YAML) by exercising the same view
// shape the commands package formats.
func TestCLIOutputFormats(t *testing.T) {
	env := newCLITestEnv(t)

	env.addTestSession(t, "172.16.0.1", "172.16.0.2")

	sessions := env.listSessions(t)
	sess := sessions[0]

	t.Run("json_single", func(t *testing.T) {
		data, err := json.MarshalIndent(sess, "", "  ")
		if err != nil {
			t.Fatalf("JSON marshal: %v", err)
		}

		out := string(data)
		if !strings.Contains(out, "172.16.0.1") {
			t.Errorf("JSON output missing peer address: %s", out)
		}
		if !strings.Contains(out, "peer_address") {
			t.Errorf("JSON output missing field name: %s", out)
		}
	})

	t.Run("yaml_single", func(t *testing.T) {
		data, err := yaml.Marshal(buildSessionView(sess))
		if err != nil {
			t.Fatalf("YAML marshal: %v", err)
		}

		out := string(data)
		if !strings.Contains(out, "172.16.0.1") {
			t.Errorf("YAML output missing peer address: %s", out)
		}
		if !strings.Contains(out, "peer_address:") {
			t.Errorf("YAML output missing field name: %s", out)
		}
	})

	t.Run("yaml_roundtrip", func(t *testing.T) {
		view := buildSessionView(sess)

		data, err := yaml.Marshal(view)
		if err != nil {
			t.Fatalf("YAML marshal: %v", err)
		}

		var decoded sessionViewForTest
		if err := yaml.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("YAML unmarshal: %v", err)
		}

		if decoded.PeerAddress != "172.16.0.1" {
			t.Errorf("YAML roundtrip peer_address = %q, want %q", decoded.PeerAddress, "172.16.0.1")
		}
		if decoded.LocalAddress != "172.16.0.2" {
			t.Errorf("YAML roundtrip local_address = %q, want %q", decoded.LocalAddress, "172.16.0.2")
		}
		if decoded.DetectMultiplier != 3 {
			t.Errorf("YAML roundtrip detect_multiplier = %d, want 3", decoded.DetectMultiplier)
		}
	})
}

// TestCLIDeleteNonexistent verifies that deleting a nonexistent session
// returns a proper error.
func TestCLIDeleteNonexistent(t *testing.T) {
	env := newCLITestEnv(t)

	resp := env.deleteSession(t, 99999)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("DeleteSession(99999) status = %d, want 404", resp.StatusCode)
	}
}

// TestCLIGetNonexistent verifies that getting a nonexistent session
// returns a proper error.
func TestCLIGetNonexistent(t *testing.T) {
	env := newCLITestEnv(t)

	resp, _ := env.getSession(t, "1.2.3.4")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GetSession(1.2.3.4) status = %d, want 404", resp.StatusCode)
	}
}

// TestCLIDuplicateSession verifies that adding a duplicate session
// returns an appropriate error.
func TestCLIDuplicateSession(t *testing.T) {
	env := newCLITestEnv(t)

	env.addTestSession(t, "10.1.1.1", "10.1.1.2")

	body, _ := json.Marshal(wireSession{
		PeerAddress:           "10.1.1.1",
		LocalAddress:          "10.1.1.2",
		Type:                  "single_hop",
		DesiredMinTxInterval:  int64(time.Second),
		RequiredMinRxInterval: int64(time.Second),
		DetectMultiplier:      3,
	})

	resp, err := env.hc.Post(env.baseURL+"/api/v1/bfd/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("AddSession duplicate: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("AddSession duplicate status = %d, want 409", resp.StatusCode)
	}
}

// --- Helper types for test assertions ---

// sessionViewForTest mirrors the session view struct for YAML round-trip testing.
type sessionViewForTest struct {
	PeerAddress      string `yaml:"peer_address"`
	LocalAddress     string `yaml:"local_address"`
	LocalState       string `yaml:"local_state"`
	DetectMultiplier uint32 `yaml:"detect_multiplier"`
}

// buildSessionView creates a map-like view of a BFD session for format testing.
func buildSessionView(s wireSession) map[string]any {
	return map[string]any{
		"peer_address":             s.PeerAddress,
		"local_address":            s.LocalAddress,
		"local_state":              s.LocalState,
		"local_discriminator":      s.LocalDiscriminator,
		"detect_multiplier":        s.DetectMultiplier,
		"desired_min_tx_interval":  time.Duration(s.DesiredMinTxInterval).String(),
		"required_min_rx_interval": time.Duration(s.RequiredMinRxInterval).String(),
	}
}
