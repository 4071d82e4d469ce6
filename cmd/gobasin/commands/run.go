package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/plan-systems/klog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/basin-systems/gobasin/gobasin"
	"github.com/basin-systems/gobasin/libbasin"
	"github.com/basin-systems/gobasin/libbasin/export"
)

var (
	runPlanFile string
	runOutDir   string
)

var runCmd = &cobra.Command{
	Use:   "run [plan-expr]",
	Short: "Execute a multiplex plan and export the derived tables",
	Long: `Executes a plan end to end: reverse indexes per rule, basin maps,
branch decomposition, the multiplex table, tunnel and mechanism
classification, and stability scores.  The plan is given inline or
via --plan, e.g.:

    gobasin run "n = 4 to 6; cycle 1 2 3; budget depth = 40"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		planText := ""
		if len(args) == 1 {
			planText = args[0]
		}
		if len(runPlanFile) > 0 {
			raw, err := os.ReadFile(runPlanFile)
			if err != nil {
				return err
			}
			planText = string(raw)
		}
		if len(planText) == 0 {
			return gobasin.ErrBadPlan
		}

		plan, err := libbasin.ParsePlan(planText)
		if err != nil {
			return err
		}

		st, err := openStore(true)
		if err != nil {
			return err
		}
		defer st.Close()

		runner := libbasin.Runner{
			Store:    st,
			RunTag:   viper.GetString("run-tag"),
			IndexDir: viper.GetString("index-dir"),
			Mode:     evalMode(),
			Workers:  viper.GetInt("workers"),
		}
		result, err := runner.Run(cmd.Context(), plan)
		if err != nil {
			return err
		}

		tunnels := 0
		for _, node := range result.Tunnels {
			if node.IsTunnel {
				tunnels++
			}
		}
		klog.Infof("run %q: %d basins, %d assignments, %d tunnels, %d transitions",
			runner.RunTag, len(result.Basins), len(result.Table.Rows), tunnels, len(result.Transitions))

		if len(runOutDir) == 0 {
			return nil
		}
		return writeArtifacts(runner.RunTag, runOutDir, result)
	},
}

// writeArtifacts drops every derived table under dir, file names
// prefixed with the run tag so successive runs coexist.
func writeArtifacts(runTag, dir string, result *libbasin.RunResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, b := range result.Basins {
		if b.Truncated {
			continue
		}
		name := fmt.Sprintf("%s-basin-n%03d-%s.csv", runTag, b.Rule, b.Cycle.Key())
		if err := writeTo(dir, name, func(w io.Writer) error {
			return export.WriteBasin(w, runTag, b)
		}); err != nil {
			return err
		}
	}

	for _, bs := range result.Branches {
		name := fmt.Sprintf("%s-branches-n%03d-%s.csv", runTag, bs.Rule, bs.Cycle.Key())
		if err := writeTo(dir, name, func(w io.Writer) error {
			return export.WriteBranches(w, runTag, bs)
		}); err != nil {
			return err
		}
	}

	steps := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"assignments", func(w io.Writer) error { return export.WriteAssignments(w, result.Table) }},
		{"tunnels", func(w io.Writer) error { return export.WriteTunnels(w, result.Table, result.Tunnels) }},
		{"transitions", func(w io.Writer) error { return export.WriteTransitions(w, runTag, result.Transitions) }},
		{"stability", func(w io.Writer) error { return export.WriteStability(w, result.Table, result.Scores) }},
	}
	for _, step := range steps {
		name := fmt.Sprintf("%s-%s.csv", runTag, step.name)
		if err := writeTo(dir, name, step.write); err != nil {
			return err
		}
	}

	klog.Infof("artifacts written to %s", dir)
	return nil
}

func writeTo(dir, name string, write func(io.Writer) error) error {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func init() {
	runCmd.Flags().StringVar(&runPlanFile, "plan", "", "file holding the plan expression")
	runCmd.Flags().StringVar(&runOutDir, "out", "", "directory for exported CSV artifacts")
	rootCmd.AddCommand(runCmd)
}
