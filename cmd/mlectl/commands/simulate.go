package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mash-protocol/mle-go/internal/scenario"
	"github.com/mash-protocol/mle-go/pkg/log"
)

var (
	scenarioFile string
	scenarioDir  string
	protocolLog  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run attach scenarios on the simulated network",
	Long: `Attach the scenario's node to its scripted routers and print the outcome.

With --dir every .yaml and .yml file in the directory is run. The command
fails if any scenario misses its expectations.`,
	Example: `  mlectl simulate -f scenarios/best-parent.yaml
  mlectl simulate --dir scenarios --protocol-log attach.mlog`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVarP(&scenarioFile, "file", "f", "", "Scenario file")
	simulateCmd.Flags().StringVar(&scenarioDir, "dir", "", "Directory of scenario files")
	simulateCmd.Flags().StringVar(&protocolLog, "protocol-log", "", "Write protocol capture events to this file")
	simulateCmd.MarkFlagsMutuallyExclusive("file", "dir")
	simulateCmd.MarkFlagsOneRequired("file", "dir")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	var scs []*scenario.Scenario
	if scenarioDir != "" {
		loaded, err := scenario.LoadDirectory(scenarioDir)
		if err != nil {
			return err
		}
		scs = loaded
	} else {
		sc, err := scenario.Load(scenarioFile)
		if err != nil {
			return err
		}
		scs = append(scs, sc)
	}

	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	opts := scenario.Options{Logger: logger}
	if protocolLog != "" {
		fl, err := log.NewFileLogger(protocolLog)
		if err != nil {
			return fmt.Errorf("failed to open protocol log: %w", err)
		}
		defer fl.Close()
		opts.ProtocolLogger = fl
	}

	return RunSimulate(scs, opts, cmd.OutOrStdout())
}

// RunSimulate runs each scenario and prints its result to w. The returned
// error joins the failed expectations of all scenarios.
func RunSimulate(scs []*scenario.Scenario, opts scenario.Options, w io.Writer) error {
	var failed []error
	for i, sc := range scs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		res, err := scenario.Run(sc, opts)
		if err != nil {
			return fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		printResult(w, sc, res)

		if err := sc.Expect.Check(res); err != nil {
			fmt.Fprintf(w, "Expect:   FAIL\n")
			fmt.Fprintf(w, "  %v\n", err)
			failed = append(failed, fmt.Errorf("scenario %s: %w", sc.Name, err))
		} else if sc.Expect != nil {
			fmt.Fprintf(w, "Expect:   PASS\n")
		}
	}
	return errors.Join(failed...)
}

func printResult(w io.Writer, sc *scenario.Scenario, res scenario.Result) {
	fmt.Fprintf(w, "Scenario: %s\n", sc.Name)
	if sc.Description != "" {
		fmt.Fprintf(w, "          %s\n", sc.Description)
	}
	fmt.Fprintf(w, "State:    %s\n", res.State)
	fmt.Fprintf(w, "Role:     %s\n", res.Role)
	fmt.Fprintf(w, "Short:    %#04x\n", res.ShortAddress)
	if res.Parent != nil {
		fmt.Fprintf(w, "Parent:   %s (%#04x)\n", res.Parent.Ext, res.Parent.ShortAddress)
	} else {
		fmt.Fprintf(w, "Parent:   none\n")
	}
	if l := res.Leader; l != nil {
		fmt.Fprintf(w, "Leader:   partition %d weighting %d router %d data %d/%d\n",
			l.PartitionID, l.Weighting, l.LeaderRouterID, l.DataVersion, l.StableDataVersion)
	}
	fmt.Fprintf(w, "Restarts: %d\n", res.Supervisor.Restarts)
	fmt.Fprintf(w, "Sent:     %d messages in %s\n", res.Transmissions, res.Elapsed.Round(time.Millisecond))
}
