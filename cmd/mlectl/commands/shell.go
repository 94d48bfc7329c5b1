package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mash-protocol/mle-go/cmd/mlectl/interactive"
	"github.com/mash-protocol/mle-go/internal/scenario"
	"github.com/mash-protocol/mle-go/pkg/log"
)

var (
	shellFile        string
	shellProtocolLog string
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Step through a scenario interactively",
	Long: `Load a scenario without starting it and open a console. Simulated time
only advances on the run command.`,
	Example: `  mlectl shell -f scenarios/best-parent.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := scenario.Load(shellFile)
		if err != nil {
			return err
		}
		logger, err := newLogger(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		opts := scenario.Options{Logger: logger}
		if shellProtocolLog != "" {
			fl, err := log.NewFileLogger(shellProtocolLog)
			if err != nil {
				return fmt.Errorf("failed to open protocol log: %w", err)
			}
			defer fl.Close()
			opts.ProtocolLogger = fl
		}

		session, err := scenario.NewSession(sc, opts)
		if err != nil {
			return err
		}
		return interactive.New(sc.Name, session, cmd.OutOrStdout()).Run()
	},
}

func init() {
	shellCmd.Flags().StringVarP(&shellFile, "file", "f", "", "Scenario file")
	shellCmd.Flags().StringVar(&shellProtocolLog, "protocol-log", "", "Write protocol capture events to this file")
	_ = shellCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(shellCmd)
}
