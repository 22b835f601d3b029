// Package commands implements the gobfdctl CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	valueNA     = "N/A"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatSessions renders a slice of BFD sessions in the requested format.
func formatSessions(sessions []sessionWire, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatSessionsJSON(sessions)
	case formatTable:
		return formatSessionsTable(sessions)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatSession renders a single BFD session in the requested format.
func formatSession(session sessionWire, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatSessionJSON(session)
	case formatTable:
		return formatSessionDetail(session), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatEvent renders a session event in the requested format.
func formatEvent(event sessionEventWire, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatEventJSON(event)
	case formatTable:
		return formatEventTable(event), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Table formatters ---

func formatSessionsTable(sessions []sessionWire) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DISCRIMINATOR\tPEER\tLOCAL\tTYPE\tSTATE\tREMOTE-STATE\tDIAG")

	for _, s := range sessions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.LocalDiscriminator,
			s.PeerAddress,
			s.LocalAddress,
			displaySessionType(s.Type),
			s.LocalState,
			s.RemoteState,
			s.LocalDiagnostic,
		)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

func formatSessionDetail(s sessionWire) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Peer Address:\t%s\n", s.PeerAddress)
	fmt.Fprintf(w, "Local Address:\t%s\n", s.LocalAddress)
	fmt.Fprintf(w, "Interface:\t%s\n", s.InterfaceName)
	fmt.Fprintf(w, "Type:\t%s\n", displaySessionType(s.Type))
	fmt.Fprintf(w, "Local State:\t%s\n", s.LocalState)
	fmt.Fprintf(w, "Remote State:\t%s\n", s.RemoteState)
	fmt.Fprintf(w, "Local Diagnostic:\t%s\n", s.LocalDiagnostic)
	fmt.Fprintf(w, "Local Discriminator:\t%d\n", s.LocalDiscriminator)
	fmt.Fprintf(w, "Remote Discriminator:\t%d\n", s.RemoteDiscriminator)
	fmt.Fprintf(w, "Detect Multiplier:\t%d\n", s.DetectMultiplier)
	fmt.Fprintf(w, "Desired Min TX:\t%s\n", time.Duration(s.DesiredMinTxInterval))
	fmt.Fprintf(w, "Required Min RX:\t%s\n", time.Duration(s.RequiredMinRxInterval))

	_ = w.Flush()

	return buf.String()
}

func formatEventTable(event sessionEventWire) string {
	ts := valueNA
	if event.Timestamp != "" {
		ts = event.Timestamp
	}

	prev := valueNA
	if event.PreviousState != "" {
		prev = event.PreviousState
	}

	return fmt.Sprintf("[%s] %s  peer=%s  state=%s  prev=%s  discr=%d",
		ts,
		event.Type,
		event.Session.PeerAddress,
		event.Session.LocalState,
		prev,
		event.Session.LocalDiscriminator,
	)
}

// --- JSON formatters ---

func formatSessionsJSON(sessions []sessionWire) (string, error) {
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sessions to JSON: %w", err)
	}

	return string(data), nil
}

func formatSessionJSON(session sessionWire) (string, error) {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal session to JSON: %w", err)
	}

	return string(data), nil
}

func formatEventJSON(event sessionEventWire) (string, error) {
	data, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal event to JSON: %w", err)
	}

	return string(data), nil
}

// displaySessionType renders the daemon's wire session type string
// (single_hop/multi_hop) in the CLI's hyphenated form.
func displaySessionType(t string) string {
	switch t {
	case "single_hop":
		return "single-hop"
	case "multi_hop":
		return "multi-hop"
	default:
		return t
	}
}
