// Package server implements the daemon's JSON/HTTP API for managing BFD
// sessions and for the northbound commit/get surface shared by the routing
// protocol instances (see internal/northbound).
//
// A real deployment of this daemon would expose these operations over a
// generated ConnectRPC/gRPC service (as the session manager's shape still
// suggests), but the generated stubs require running protoc against a
// .proto schema that isn't available in this environment. Rather than hand
// write fake generated code, the surface below is a plain net/http JSON
// API: same resource model, same error semantics, no codegen dependency.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/holo-suite/holod/internal/bfd"
	"github.com/holo-suite/holod/internal/northbound"
)

// Sentinel errors for the server package.
var (
	// ErrMissingIdentifier indicates no identifier was provided in a GetSession request.
	ErrMissingIdentifier = errors.New("identifier must be a discriminator or peer address")

	// ErrInvalidSessionType indicates an unrecognized session type in the request.
	ErrInvalidSessionType = errors.New("invalid session type")

	// ErrDetectMultZero indicates a zero detect multiplier in the request.
	ErrDetectMultZero = errors.New("detect multiplier must be >= 1")

	// ErrDetectMultOverflow indicates the detect multiplier exceeds uint8 range.
	ErrDetectMultOverflow = errors.New("detect multiplier exceeds maximum 255")

	// ErrUnknownInstance indicates a northbound request named an instance
	// that was never registered.
	ErrUnknownInstance = errors.New("unknown instance")
)

// SenderFactory creates and tears down the UDP socket backing a session's
// PacketSender. cmd/gobfd's udpSenderFactory is the production
// implementation; tests pass nil and get a no-op sender.
type SenderFactory interface {
	CreateSender(localAddr netip.Addr, multiHop bool, logger *slog.Logger) (bfd.PacketSender, uint16, error)
	CloseSender(srcPort uint16) error
}

// noopSender is a PacketSender that discards all packets. Used when no
// SenderFactory is supplied (tests, or a session manager with no live
// network path).
type noopSender struct{}

func (noopSender) SendPacket(_ context.Context, _ []byte, _ netip.Addr) error {
	return nil
}

// Option customizes the handler chain returned by New. Each Option wraps
// the previous handler, mirroring the teacher's unary-interceptor chain but
// expressed as ordinary net/http middleware.
type Option func(http.Handler) http.Handler

// BFDServer serves the BFD session API and the northbound commit/get API
// over plain HTTP+JSON. Each endpoint delegates to the session Manager or
// to a northbound.Collaborator; the server itself holds no BFD or
// northbound state of its own.
type BFDServer struct {
	manager *bfd.Manager
	sf      SenderFactory
	collab  northbound.Collaborator
	logger  *slog.Logger

	ports map[uint32]uint16 // local discriminator -> allocated source port, for CloseSender on delete
}

// New creates a BFDServer and returns the URL path prefix it should be
// mounted at and the http.Handler serving it. collab may be nil, in which
// case the northbound endpoints respond 404 rather than panicking.
func New(mgr *bfd.Manager, sf SenderFactory, collab northbound.Collaborator, logger *slog.Logger, opts ...Option) (string, http.Handler) {
	srv := &BFDServer{
		manager: mgr,
		sf:      sf,
		collab:  collab,
		logger:  logger.With(slog.String("component", "server")),
		ports:   make(map[uint32]uint16),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/bfd/sessions", srv.handleAddSession)
	mux.HandleFunc("GET /api/v1/bfd/sessions", srv.handleListSessions)
	mux.HandleFunc("GET /api/v1/bfd/sessions/watch", srv.handleWatchSessions)
	mux.HandleFunc("GET /api/v1/bfd/sessions/{id}", srv.handleGetSession)
	mux.HandleFunc("DELETE /api/v1/bfd/sessions/{id}", srv.handleDeleteSession)

	mux.HandleFunc("POST /api/v1/northbound/{instance}/commit", srv.handleNorthboundCommit)
	mux.HandleFunc("GET /api/v1/northbound/{instance}/state", srv.handleNorthboundGet)

	var h http.Handler = mux
	// Apply in reverse so the first Option given ends up outermost, same
	// ordering convention as connect.WithInterceptors.
	for i := len(opts) - 1; i >= 0; i-- {
		h = opts[i](h)
	}

	return "/api/v1/", h
}

// -------------------------------------------------------------------------
// Wire types
// -------------------------------------------------------------------------

type sessionRequest struct {
	PeerAddress           string `json:"peer_address"`
	LocalAddress          string `json:"local_address"`
	InterfaceName         string `json:"interface_name"`
	Type                  string `json:"type"`
	DesiredMinTxInterval  int64  `json:"desired_min_tx_interval_ns"`
	RequiredMinRxInterval int64  `json:"required_min_rx_interval_ns"`
	DetectMultiplier      uint32 `json:"detect_multiplier"`
}

type sessionView struct {
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

type sessionEvent struct {
	Type          string       `json:"type"` // "session_added" | "state_change"
	Session       sessionView  `json:"session"`
	PreviousState string       `json:"previous_state,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

type commitRequest struct {
	Diffs []diffWire `json:"diffs"`
}

type diffWire struct {
	Path   string `json:"path"`
	Value  any    `json:"value"`
	Delete bool   `json:"delete"`
}

type apiError struct {
	Error string `json:"error"`
}

// -------------------------------------------------------------------------
// BFD session handlers
// -------------------------------------------------------------------------

func (s *BFDServer) handleAddSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	cfg, err := sessionConfigFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sender, srcPort, err := s.createSender(cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("create sender: %w", err))
		return
	}

	sess, err := s.manager.CreateSession(r.Context(), cfg, sender)
	if err != nil {
		if s.sf != nil && srcPort != 0 {
			_ = s.sf.CloseSender(srcPort)
		}
		writeJSONError(w, mapManagerError(err))
		return
	}

	if s.sf != nil && srcPort != 0 {
		s.ports[sess.LocalDiscriminator()] = srcPort
	}

	writeJSON(w, http.StatusCreated, sessionViewFromSession(sess, cfg))
}

func (s *BFDServer) createSender(cfg bfd.SessionConfig) (bfd.PacketSender, uint16, error) {
	if s.sf == nil {
		return noopSender{}, 0, nil
	}
	local := cfg.LocalAddr
	if !local.IsValid() {
		local = cfg.PeerAddr
	}
	return s.sf.CreateSender(local, cfg.Type == bfd.SessionTypeMultiHop, s.logger)
}

func (s *BFDServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	discr, err := parseDiscriminator(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.manager.DestroySession(r.Context(), discr); err != nil {
		writeJSONError(w, mapManagerError(err))
		return
	}

	if s.sf != nil {
		if port, ok := s.ports[discr]; ok {
			delete(s.ports, discr)
			if cerr := s.sf.CloseSender(port); cerr != nil {
				s.logger.Warn("failed to close sender", slog.String("error", cerr.Error()))
			}
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *BFDServer) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	snapshots := s.manager.Sessions()
	views := make([]sessionView, 0, len(snapshots))
	for _, snap := range snapshots {
		views = append(views, sessionViewFromSnapshot(snap))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *BFDServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if discr, err := parseDiscriminator(id); err == nil {
		sess, ok := s.manager.LookupByDiscriminator(discr)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("session %d: %w", discr, bfd.ErrSessionNotFound))
			return
		}
		writeJSON(w, http.StatusOK, sessionViewFromSession(sess, bfd.SessionConfig{}))
		return
	}

	addr, err := netip.ParseAddr(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrMissingIdentifier)
		return
	}

	for _, snap := range s.manager.Sessions() {
		if snap.PeerAddr == addr {
			writeJSON(w, http.StatusOK, sessionViewFromSnapshot(snap))
			return
		}
	}

	writeError(w, http.StatusNotFound, fmt.Errorf("session with peer %s: %w", addr, bfd.ErrSessionNotFound))
}

// handleWatchSessions streams session events as newline-delimited JSON
// until the client disconnects or the server shuts down.
func (s *BFDServer) handleWatchSessions(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)

	if r.URL.Query().Get("include_current") == "true" {
		for _, snap := range s.manager.Sessions() {
			ev := sessionEvent{Type: "session_added", Session: sessionViewFromSnapshot(snap), Timestamp: time.Now()}
			if err := enc.Encode(ev); err != nil {
				return
			}
		}
		flusher.Flush()
	}

	ch := s.manager.StateChanges()
	for {
		select {
		case <-r.Context().Done():
			return
		case sc, ok := <-ch:
			if !ok {
				return
			}
			ev := sessionEvent{
				Type: "state_change",
				Session: sessionView{
					PeerAddress:        sc.PeerAddr.String(),
					LocalDiscriminator: sc.LocalDiscr,
					LocalState:         sc.NewState.String(),
					LocalDiagnostic:    sc.Diag.String(),
				},
				PreviousState: sc.OldState.String(),
				Timestamp:     sc.Timestamp,
			}
			if err := enc.Encode(ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// -------------------------------------------------------------------------
// Northbound handlers
// -------------------------------------------------------------------------

func (s *BFDServer) handleNorthboundCommit(w http.ResponseWriter, r *http.Request) {
	if s.collab == nil {
		writeError(w, http.StatusNotFound, ErrUnknownInstance)
		return
	}

	instance := r.PathValue("instance")
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	diffs := make([]northbound.Diff, 0, len(req.Diffs))
	for _, d := range req.Diffs {
		diffs = append(diffs, northbound.Diff{Path: d.Path, Value: d.Value, Delete: d.Delete})
	}

	if err := s.collab.Commit(r.Context(), instance, diffs); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *BFDServer) handleNorthboundGet(w http.ResponseWriter, r *http.Request) {
	if s.collab == nil {
		writeError(w, http.StatusNotFound, ErrUnknownInstance)
		return
	}

	instance := r.PathValue("instance")
	path := r.URL.Query().Get("path")

	tree, err := s.collab.Get(r.Context(), instance, path)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// -------------------------------------------------------------------------
// Conversion and error helpers
// -------------------------------------------------------------------------

func parseDiscriminator(s string) (uint32, error) {
	var discr uint32
	if _, err := fmt.Sscanf(s, "%d", &discr); err != nil || discr == 0 {
		return 0, fmt.Errorf("invalid discriminator %q", s)
	}
	return discr, nil
}

func sessionConfigFromRequest(req sessionRequest) (bfd.SessionConfig, error) {
	peerAddr, err := netip.ParseAddr(req.PeerAddress)
	if err != nil {
		return bfd.SessionConfig{}, fmt.Errorf("parse peer address %q: %w", req.PeerAddress, err)
	}

	var localAddr netip.Addr
	if req.LocalAddress != "" {
		localAddr, err = netip.ParseAddr(req.LocalAddress)
		if err != nil {
			return bfd.SessionConfig{}, fmt.Errorf("parse local address %q: %w", req.LocalAddress, err)
		}
	}

	sessType, err := sessionTypeFromWire(req.Type)
	if err != nil {
		return bfd.SessionConfig{}, err
	}

	if req.DetectMultiplier == 0 {
		return bfd.SessionConfig{}, ErrDetectMultZero
	}
	if req.DetectMultiplier > 255 {
		return bfd.SessionConfig{}, fmt.Errorf("value %d: %w", req.DetectMultiplier, ErrDetectMultOverflow)
	}

	desiredMinTx := time.Duration(req.DesiredMinTxInterval)
	if desiredMinTx == 0 {
		desiredMinTx = time.Second // RFC 5880 Section 6.8.1 default.
	}
	requiredMinRx := time.Duration(req.RequiredMinRxInterval)
	if requiredMinRx == 0 {
		requiredMinRx = time.Second
	}

	return bfd.SessionConfig{
		PeerAddr:              peerAddr,
		LocalAddr:             localAddr,
		Interface:             req.InterfaceName,
		Type:                  sessType,
		Role:                  bfd.RoleActive, // Default to active; passive requires explicit config.
		DesiredMinTxInterval:  desiredMinTx,
		RequiredMinRxInterval: requiredMinRx,
		DetectMultiplier:      uint8(req.DetectMultiplier),
	}, nil
}

func sessionTypeFromWire(t string) (bfd.SessionType, error) {
	switch t {
	case "single_hop":
		return bfd.SessionTypeSingleHop, nil
	case "multi_hop":
		return bfd.SessionTypeMultiHop, nil
	default:
		return 0, fmt.Errorf("%q: %w", t, ErrInvalidSessionType)
	}
}

func sessionTypeToWire(st bfd.SessionType) string {
	switch st {
	case bfd.SessionTypeSingleHop:
		return "single_hop"
	case bfd.SessionTypeMultiHop:
		return "multi_hop"
	default:
		return "unspecified"
	}
}

func sessionViewFromSession(sess *bfd.Session, cfg bfd.SessionConfig) sessionView {
	sessType := cfg.Type
	desiredMinTx := cfg.DesiredMinTxInterval
	requiredMinRx := cfg.RequiredMinRxInterval
	if desiredMinTx == 0 {
		desiredMinTx = sess.DesiredMinTxInterval()
	}
	if requiredMinRx == 0 {
		requiredMinRx = sess.RequiredMinRxInterval()
	}

	return sessionView{
		PeerAddress:           sess.PeerAddr().String(),
		LocalAddress:          addrStringOrEmpty(sess.LocalAddr()),
		InterfaceName:         sess.Interface(),
		Type:                  sessionTypeToWire(sessType),
		LocalState:            sess.State().String(),
		RemoteState:           sess.RemoteState().String(),
		LocalDiagnostic:       sess.LocalDiag().String(),
		LocalDiscriminator:    sess.LocalDiscriminator(),
		RemoteDiscriminator:   sess.RemoteDiscriminator(),
		DesiredMinTxInterval:  int64(desiredMinTx),
		RequiredMinRxInterval: int64(requiredMinRx),
		DetectMultiplier:      uint32(sess.DetectMultiplier()),
	}
}

func sessionViewFromSnapshot(snap bfd.SessionSnapshot) sessionView {
	return sessionView{
		PeerAddress:           snap.PeerAddr.String(),
		LocalAddress:          addrStringOrEmpty(snap.LocalAddr),
		InterfaceName:         snap.Interface,
		Type:                  sessionTypeToWire(snap.Type),
		LocalState:            snap.State.String(),
		RemoteState:           snap.RemoteState.String(),
		LocalDiagnostic:       snap.LocalDiag.String(),
		LocalDiscriminator:    snap.LocalDiscr,
		RemoteDiscriminator:   snap.RemoteDiscr,
		DesiredMinTxInterval:  int64(snap.DesiredMinTx),
		RequiredMinRxInterval: int64(snap.RequiredMinRx),
		DetectMultiplier:      uint32(snap.DetectMultiplier),
	}
}

func addrStringOrEmpty(addr netip.Addr) string {
	if !addr.IsValid() {
		return ""
	}
	return addr.String()
}

// httpError pairs a status code with the error that produced it.
type httpError struct {
	status int
	err    error
}

// mapManagerError translates bfd.Manager errors into appropriate HTTP status codes.
func mapManagerError(err error) httpError {
	switch {
	case errors.Is(err, bfd.ErrDuplicateSession):
		return httpError{http.StatusConflict, err}
	case errors.Is(err, bfd.ErrSessionNotFound):
		return httpError{http.StatusNotFound, err}
	case errors.Is(err, bfd.ErrInvalidPeerAddr),
		errors.Is(err, bfd.ErrInvalidDetectMult),
		errors.Is(err, bfd.ErrInvalidTxInterval),
		errors.Is(err, bfd.ErrInvalidSessionType),
		errors.Is(err, bfd.ErrInvalidSessionRole):
		return httpError{http.StatusBadRequest, err}
	default:
		return httpError{http.StatusInternalServerError, err}
	}
}

func writeJSONError(w http.ResponseWriter, he httpError) {
	writeError(w, he.status, he.err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, apiError{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
