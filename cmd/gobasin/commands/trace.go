package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/basin-systems/gobasin/gobasin"
	"github.com/basin-systems/gobasin/libbasin/walk"
)

var (
	traceRule  int
	traceSteps int
)

var traceCmd = &cobra.Command{
	Use:   "trace <start-page-id>",
	Short: "Iterate f_N from a start page and classify the terminal behavior",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return err
		}

		st, err := openStore(true)
		if err != nil {
			return err
		}
		defer st.Close()

		tracer := walk.Tracer{Eval: walk.Evaluator{Store: st, Mode: evalMode()}}
		trace, err := tracer.Trace(gobasin.PageID(start), gobasin.NRule(traceRule), walk.TraceOpts{MaxSteps: traceSteps})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "start=%d n=%d terminal=%s steps=%d\n", trace.Start, trace.Rule, trace.Terminal, trace.Steps())
		for i, id := range trace.Path {
			title := ""
			if p, err := st.PageInfo(id); err == nil {
				title = p.Title
			}
			fmt.Fprintf(out, "%4d  %d  %s\n", i, id, title)
		}
		if trace.Terminal == gobasin.TerminalCycle {
			fmt.Fprintf(out, "cycle: %s members=%v\n", trace.Cycle, trace.Cycle.Members())
		}
		return nil
	},
}

func init() {
	traceCmd.Flags().IntVar(&traceRule, "n", 1, "link rule N (1-indexed)")
	traceCmd.Flags().IntVar(&traceSteps, "max-steps", 0, "step budget (0 = default)")
	rootCmd.AddCommand(traceCmd)
}
