package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mash-protocol/mle-go/pkg/log"
	"github.com/mash-protocol/mle-go/pkg/mle"
)

var statsCmd = &cobra.Command{
	Use:   "stats <file.mlog>",
	Short: "Summarize a capture file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunStats(args[0], cmd.OutOrStdout())
	},
}

func init() {
	logCmd.AddCommand(statsCmd)
}

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	MessagesByCommand map[mle.Command]int
	Attempts          map[string]*AttemptStats
	Timeouts          int
	Exhausted         int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// AttemptStats holds statistics for a single attach attempt.
type AttemptStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Sent      int
	Received  int

	// States lists the attach states entered, in order.
	States []string
}

// RunStats analyzes the capture file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		MessagesByCommand: make(map[mle.Command]int),
		Attempts:          make(map[string]*AttemptStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.Message != nil {
		s.MessagesByCommand[event.Message.Command]++
	}
	if event.Timeout != nil {
		s.Timeouts++
		if event.Timeout.UsedAllRetries {
			s.Exhausted++
		}
	}
	if event.Error != nil {
		s.Errors++
	}

	if event.AttemptID == "" {
		return
	}
	att, ok := s.Attempts[event.AttemptID]
	if !ok {
		att = &AttemptStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Attempts[event.AttemptID] = att
	}
	att.Events++
	if event.Timestamp.After(att.LastSeen) {
		att.LastSeen = event.Timestamp
	}
	if event.Message != nil {
		switch event.Direction {
		case log.DirectionOut:
			att.Sent++
		case log.DirectionIn:
			att.Received++
		}
	}
	if sc := event.StateChange; sc != nil && sc.Entity == log.StateEntityAttach {
		att.States = append(att.States, sc.NewState)
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== MLE Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Millisecond))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryTimeout, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut, log.DirectionLocal} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.MessagesByCommand) > 0 {
		fmt.Fprintln(w, "Messages by Command:")
		cmds := make([]mle.Command, 0, len(stats.MessagesByCommand))
		for c := range stats.MessagesByCommand {
			cmds = append(cmds, c)
		}
		sort.Slice(cmds, func(i, j int) bool { return cmds[i] < cmds[j] })
		for _, c := range cmds {
			fmt.Fprintf(w, "  %-24s %d\n", c.String()+":", stats.MessagesByCommand[c])
		}
		fmt.Fprintln(w)
	}

	if stats.Timeouts > 0 {
		fmt.Fprintf(w, "Timeouts: %d (%d exhausted)\n", stats.Timeouts, stats.Exhausted)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Attempts: %d\n", len(stats.Attempts))
	if len(stats.Attempts) > 0 {
		type attemptInfo struct {
			id    string
			stats *AttemptStats
		}
		atts := make([]attemptInfo, 0, len(stats.Attempts))
		for id, as := range stats.Attempts {
			atts = append(atts, attemptInfo{id, as})
		}
		sort.Slice(atts, func(i, j int) bool {
			return atts[i].stats.FirstSeen.Before(atts[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, a := range atts {
			duration := a.stats.LastSeen.Sub(a.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, %d sent, %d received, duration %s\n",
				shortenID(a.id), a.stats.Events, a.stats.Sent, a.stats.Received, duration)
			if len(a.stats.States) > 0 {
				fmt.Fprintf(w, "           States: %s\n", strings.Join(a.stats.States, " -> "))
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
