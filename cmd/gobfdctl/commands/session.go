package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// Sentinel errors for CLI validation.
var (
	errPeerRequired       = errors.New("--peer flag is required")
	errUnknownSessionType = errors.New("unknown session type, expected single-hop or multi-hop")
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage BFD sessions",
	}

	cmd.AddCommand(sessionListCmd())
	cmd.AddCommand(sessionShowCmd())
	cmd.AddCommand(sessionAddCmd())
	cmd.AddCommand(sessionDeleteCmd())

	return cmd
}

// --- session list ---

func sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all BFD sessions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			sessions, err := client.ListSessions(context.Background())
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			out, err := formatSessions(sessions, outputFormat)
			if err != nil {
				return fmt.Errorf("format sessions: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- session show ---

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <peer-address-or-discriminator>",
		Short: "Show details of a BFD session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			sess, err := client.GetSession(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("get session: %w", err)
			}

			out, err := formatSession(sess, outputFormat)
			if err != nil {
				return fmt.Errorf("format session: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- session add ---

func sessionAddCmd() *cobra.Command {
	var (
		peer       string
		local      string
		iface      string
		sessType   string
		txInterval time.Duration
		rxInterval time.Duration
		detectMult uint32
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a new BFD session",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if peer == "" {
				return errPeerRequired
			}

			wireType, err := parseSessionType(sessType)
			if err != nil {
				return fmt.Errorf("parse session type: %w", err)
			}

			req := addSessionWire{
				PeerAddress:           peer,
				LocalAddress:          local,
				InterfaceName:         iface,
				Type:                  wireType,
				DesiredMinTxInterval:  int64(txInterval),
				RequiredMinRxInterval: int64(rxInterval),
				DetectMultiplier:      detectMult,
			}

			sess, err := client.AddSession(context.Background(), req)
			if err != nil {
				return fmt.Errorf("add session: %w", err)
			}

			out, err := formatSession(sess, outputFormat)
			if err != nil {
				return fmt.Errorf("format session: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&peer, "peer", "", "peer IP address (required)")
	flags.StringVar(&local, "local", "", "local IP address")
	flags.StringVar(&iface, "interface", "", "network interface name")
	flags.StringVar(&sessType, "type", "single-hop", "session type: single-hop or multi-hop")
	flags.DurationVar(&txInterval, "tx-interval", time.Second, "desired minimum TX interval")
	flags.DurationVar(&rxInterval, "rx-interval", time.Second, "required minimum RX interval")
	flags.Uint32Var(&detectMult, "detect-mult", 3, "detection multiplier (RFC 5880 Section 6.1)")

	return cmd
}

// parseSessionType converts a CLI-facing hyphenated string to the daemon's
// wire session type string.
func parseSessionType(s string) (string, error) {
	switch s {
	case "single-hop":
		return "single_hop", nil
	case "multi-hop":
		return "multi_hop", nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownSessionType, s)
	}
}

// --- session delete ---

func sessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <discriminator>",
		Short: "Delete a BFD session by local discriminator",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			discr, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("parse discriminator %q: %w", args[0], err)
			}

			if err := client.DeleteSession(context.Background(), uint32(discr)); err != nil {
				return fmt.Errorf("delete session: %w", err)
			}

			fmt.Printf("Session %d deleted.\n", discr)

			return nil
		},
	}
}
