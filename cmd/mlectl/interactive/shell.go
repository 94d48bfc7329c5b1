// Package interactive provides a console for stepping through an attach
// scenario by hand.
package interactive

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/mash-protocol/mle-go/internal/scenario"
	"github.com/mash-protocol/mle-go/pkg/bootstrap"
)

// Shell drives a scenario session from typed commands.
type Shell struct {
	session *scenario.Session
	name    string
	out     io.Writer
}

// New creates a shell for session. Output goes to out until Run attaches a
// terminal.
func New(name string, session *scenario.Session, out io.Writer) *Shell {
	return &Shell{session: session, name: name, out: out}
}

// Run reads commands from the terminal until quit or EOF.
func (s *Shell) Run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mle> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	s.out = rl.Stdout()

	fmt.Fprintf(s.out, "Scenario %s loaded.\n", s.name)
	s.printHelp()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			return nil
		}
		if s.Exec(line) {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the shell should exit.
func (s *Shell) Exec(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()

	case "start":
		s.report(s.session.Start())

	case "scan":
		s.cmdScan(args)

	case "run", "advance", "a":
		s.cmdAdvance(args)

	case "state", "s":
		s.cmdState()

	case "parent", "p":
		s.cmdParent()

	case "routers":
		s.cmdRouters()

	case "update", "u":
		s.report(s.session.TriggerChildUpdate())

	case "children":
		s.cmdChildren()

	case "netdata", "nd":
		s.cmdNetData()

	case "reset":
		s.report(s.session.Reset())

	case "quit", "exit", "q":
		return true

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) report(err error) {
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, "OK")
}

func (s *Shell) cmdScan(args []string) {
	mode := bootstrap.AttachDiscover
	if len(args) > 0 {
		m, err := scenario.ParseAttachMode(args[0])
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return
		}
		mode = m
	}
	s.report(s.session.Scan(mode))
}

func (s *Shell) cmdAdvance(args []string) {
	d := time.Second
	if len(args) > 0 {
		v, err := time.ParseDuration(args[0])
		if err != nil || v <= 0 {
			fmt.Fprintf(s.out, "Invalid duration: %s\n", args[0])
			return
		}
		d = v
	}
	before := s.session.Result().State
	s.session.Advance(d)
	after := s.session.Result()
	if after.State != before {
		fmt.Fprintf(s.out, "%s: %s -> %s\n", after.Elapsed, before, after.State)
	} else {
		fmt.Fprintf(s.out, "%s: %s\n", after.Elapsed, after.State)
	}
}

func (s *Shell) cmdState() {
	r := s.session.Result()
	fmt.Fprintf(s.out, "State:    %s\n", r.State)
	fmt.Fprintf(s.out, "Role:     %s\n", r.Role)
	fmt.Fprintf(s.out, "Short:    %#04x\n", r.ShortAddress)
	fmt.Fprintf(s.out, "Elapsed:  %s\n", r.Elapsed)
	fmt.Fprintf(s.out, "Sent:     %d\n", r.Transmissions)
	fmt.Fprintf(s.out, "Restarts: %d\n", r.Supervisor.Restarts)
	if r.Supervisor.LastError != 0 {
		fmt.Fprintf(s.out, "Last error: %s\n", r.Supervisor.LastError)
	}
}

func (s *Shell) cmdParent() {
	r := s.session.Result()
	if r.Parent == nil {
		fmt.Fprintln(s.out, "No parent")
		return
	}
	p := r.Parent
	fmt.Fprintf(s.out, "Parent:   %s (%#04x, router %d)\n", p.Ext, p.ShortAddress, p.RouterID)
	fmt.Fprintf(s.out, "Cost:     %d\n", p.PathCostToLeader)
	fmt.Fprintf(s.out, "Version:  %d\n", p.Version)
	if p.ChildUpdateProcessActive {
		fmt.Fprintln(s.out, "Child update in progress")
	}
}

func (s *Shell) cmdRouters() {
	for _, p := range s.session.Parents() {
		fmt.Fprintf(s.out, "  %s %#04x partition %d dbm %d margin %d\n",
			p.Ext, p.ShortAddress, p.Leader.PartitionID, p.DBM, p.LinkMargin)
	}
}

func (s *Shell) cmdChildren() {
	children := s.session.Children()
	if len(children) == 0 {
		fmt.Fprintln(s.out, "No children")
		return
	}
	for _, c := range children {
		fmt.Fprintf(s.out, "  %s %#04x mle-fc %d mac-fc %d\n", c.LongAddr, c.ShortAddr, c.MLEFrameCounter, c.MACFrameCounter)
	}
}

func (s *Shell) cmdNetData() {
	data, leader, ok := s.session.NetworkData()
	if !ok {
		fmt.Fprintln(s.out, "No network data")
		return
	}
	fmt.Fprintf(s.out, "Partition: %d (leader router %d)\n", leader.PartitionID, leader.LeaderRouterID)
	fmt.Fprintf(s.out, "Version:   %d/%d\n", leader.DataVersion, leader.StableDataVersion)
	fmt.Fprintf(s.out, "Data:      %s\n", hex.EncodeToString(data))
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
MLE Attach Commands:
  Attach:
    start              - Start the supervised attach
    scan [mode]        - Scan for parents (discover, reattach, reattach_retry, any;
                         default discover)
    update             - Send a child update to the parent
    reset              - Reset the interface to discovery

  Time:
    run [duration]     - Advance simulated time (default 1s)

  Inspection:
    state              - Show attach state and role
    parent             - Show the attached parent
    routers            - List the scripted routers
    children           - List child records
    netdata            - Show stored network data

  General:
    help               - Show this help
    quit               - Exit`)
}
