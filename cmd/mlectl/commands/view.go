package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mash-protocol/mle-go/pkg/log"
	"github.com/mash-protocol/mle-go/pkg/mle"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Inspect protocol capture files",
}

var (
	viewDirection string
	viewCategory  string
	viewCommand   string
	viewAttempt   string
	viewPayload   bool
)

var viewCmd = &cobra.Command{
	Use:   "view <file.mlog>",
	Short: "View a capture file in human-readable format",
	Example: `  mlectl log view attach.mlog
  mlectl log view --category state attach.mlog
  mlectl log view --direction out --command parent_request attach.mlog`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := buildFilter()
		if err != nil {
			return err
		}
		opts := ViewOptions{AttemptPrefix: viewAttempt, Payload: viewPayload}
		return RunView(args[0], filter, opts, cmd.OutOrStdout())
	},
}

func init() {
	viewCmd.Flags().StringVar(&viewDirection, "direction", "", "Filter by direction (in, out, local)")
	viewCmd.Flags().StringVar(&viewCategory, "category", "", "Filter by category (message, timeout, state, error)")
	viewCmd.Flags().StringVar(&viewCommand, "command", "", "Filter by MLE command (e.g. parent_request)")
	viewCmd.Flags().StringVar(&viewAttempt, "attempt", "", "Filter by attempt ID prefix")
	viewCmd.Flags().BoolVar(&viewPayload, "payload", false, "Show captured payload bytes")
	logCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(logCmd)
}

func buildFilter() (log.Filter, error) {
	var f log.Filter
	if viewDirection != "" {
		d, err := ParseDirectionFlag(viewDirection)
		if err != nil {
			return f, err
		}
		f.Direction = &d
	}
	if viewCategory != "" {
		c, err := ParseCategoryFlag(viewCategory)
		if err != nil {
			return f, err
		}
		f.Category = &c
	}
	if viewCommand != "" {
		c, err := ParseCommandFlag(viewCommand)
		if err != nil {
			return f, err
		}
		f.Command = &c
	}
	return f, nil
}

// ViewOptions controls event selection and output beyond log.Filter.
type ViewOptions struct {
	// AttemptPrefix matches attempt ids by prefix, as printed in headers.
	AttemptPrefix string

	// Payload prints the captured message bytes.
	Payload bool
}

// RunView prints the events of the capture file at path that match filter.
func RunView(path string, filter log.Filter, opts ViewOptions, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if opts.AttemptPrefix != "" && !strings.HasPrefix(event.AttemptID, opts.AttemptPrefix) {
			continue
		}
		formatEvent(w, event, opts.Payload)
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event, payload bool) {
	// Header line: timestamp [if:n attempt] DIRECTION CATEGORY label
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	var label string
	switch {
	case event.Message != nil:
		label = event.Message.Command.String()
	case event.Timeout != nil:
		label = event.Timeout.Kind.String()
	case event.StateChange != nil:
		label = event.StateChange.Entity.String()
	case event.Error != nil:
		label = "Error"
	default:
		label = "Unknown"
	}
	fmt.Fprintf(w, "%s [if:%d %s] %-5s %s %s\n", ts, event.Interface, shortenID(event.AttemptID),
		event.Direction, event.Category, label)

	if event.Peer != "" {
		fmt.Fprintf(w, "  Peer: %s\n", event.Peer)
	}
	switch {
	case event.Message != nil:
		formatMessageDetails(w, event.Message, event.Direction, payload)
	case event.Timeout != nil:
		t := event.Timeout
		fmt.Fprintf(w, "  MessageID: %d\n", t.MessageID)
		fmt.Fprintf(w, "  Decision: %s", t.Decision)
		if t.UsedAllRetries {
			fmt.Fprint(w, " (retries exhausted)")
		}
		fmt.Fprintln(w)
	case event.StateChange != nil:
		sc := event.StateChange
		if sc.OldState != "" {
			fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
		} else {
			fmt.Fprintf(w, "  -> %s\n", sc.NewState)
		}
		if sc.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
		}
	case event.Error != nil:
		fmt.Fprintf(w, "  Message: %s\n", event.Error.Message)
		if event.Error.Code != nil {
			fmt.Fprintf(w, "  Code: %d\n", *event.Error.Code)
		}
		if event.Error.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", event.Error.Context)
		}
	}
	fmt.Fprintln(w)
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent, dir log.Direction, payload bool) {
	if msg.MessageID != 0 {
		fmt.Fprintf(w, "  MessageID: %d\n", msg.MessageID)
	}
	if dir == log.DirectionIn {
		fmt.Fprintf(w, "  RSSI: %d dBm\n", msg.DBM)
	}
	names := make([]string, len(msg.TLVs))
	for i, t := range msg.TLVs {
		names[i] = t.String()
	}
	fmt.Fprintf(w, "  Size: %d bytes\n", msg.Size)
	if len(names) > 0 {
		fmt.Fprintf(w, "  TLVs: %s\n", strings.Join(names, ", "))
	}
	if payload && len(msg.Payload) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(msg.Payload))
		if msg.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

// shortenID returns the first 8 characters of an attempt ID.
func shortenID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// ParseDirectionFlag parses a direction string (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	case "local":
		return log.DirectionLocal, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in, out, or local)", s)
	}
}

// ParseCategoryFlag parses a category string (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	for _, c := range []log.Category{log.CategoryMessage, log.CategoryTimeout, log.CategoryState, log.CategoryError} {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("invalid category: %s (must be message, timeout, state, or error)", s)
}

// ParseCommandFlag parses an MLE command name such as parent_request
// (case-insensitive).
func ParseCommandFlag(s string) (mle.Command, error) {
	for c := mle.CmdLinkRequest; c <= mle.CmdDiscoveryResponse; c++ {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("invalid command: %s", s)
}
