package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/plan-systems/klog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/basin-systems/gobasin/gobasin"
	"github.com/basin-systems/gobasin/libbasin/basin"
	"github.com/basin-systems/gobasin/libbasin/export"
	"github.com/basin-systems/gobasin/libbasin/rindex"
	"github.com/basin-systems/gobasin/libbasin/walk"
)

var (
	basinRule     int
	basinMaxDepth uint32
	basinOut      string
)

var basinCmd = &cobra.Command{
	Use:   "basin <cycle-member-id>...",
	Short: "Map one cycle's basin of attraction at a single rule",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		members := make([]gobasin.PageID, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseUint(arg, 10, 32)
			if err != nil {
				return err
			}
			members = append(members, gobasin.PageID(id))
		}

		st, err := openStore(true)
		if err != nil {
			return err
		}
		defer st.Close()

		n := gobasin.NRule(basinRule)
		tracer := walk.Tracer{Eval: walk.Evaluator{Store: st, Mode: evalMode()}}
		cycle, err := tracer.VerifyCycle(members, n)
		if err != nil {
			return err
		}

		ixOpts := gobasin.IndexOpts{Mode: evalMode()}
		if dir := viper.GetString("index-dir"); len(dir) > 0 {
			ixOpts.DbPathName = filepath.Join(dir, fmt.Sprintf("rindex-n%03d", basinRule))
		}
		ix, err := rindex.Materialize(cmd.Context(), st, n, ixOpts)
		if err != nil {
			return err
		}
		defer ix.Close()

		mapper := &basin.Mapper{Index: ix, Workers: viper.GetInt("workers")}
		b, err := mapper.MapBasinOpts(cmd.Context(), cycle, basin.MapOpts{MaxDepth: basinMaxDepth})
		if err != nil {
			return err
		}

		if b.Truncated {
			klog.Warningf("basin %s truncated at layer %d; rerun with a larger --max-depth", b.Cycle, b.LastDepth)
		}
		klog.Infof("basin %s n=%d: %d members (%d beyond the cycle) across %d layers",
			b.Cycle, b.Rule, b.Size(), b.TreeSize(), len(b.LayerCounts))

		if !b.Truncated {
			summary, err := basin.AnalyzeBranches(b)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "top1_share=%.4f effective_branches=%.4f\n", summary.Top1Share, summary.EffectiveBranches)
			for rank, br := range summary.Branches {
				fmt.Fprintf(out, "%4d  entry=%d subtree=%d\n", rank+1, br.Entry, br.SubtreeSize)
			}
		}

		if len(basinOut) == 0 {
			return nil
		}
		if b.Truncated {
			klog.Warningf("refusing to export a truncated basin to %s", basinOut)
			return nil
		}
		f, err := os.Create(basinOut)
		if err != nil {
			return err
		}
		if err := export.WriteBasin(f, viper.GetString("run-tag"), b); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	},
}

func init() {
	basinCmd.Flags().IntVar(&basinRule, "n", 1, "link rule N (1-indexed)")
	basinCmd.Flags().Uint32Var(&basinMaxDepth, "max-depth", 0, "depth budget (0 = unbounded)")
	basinCmd.Flags().StringVar(&basinOut, "out", "", "write the basin members CSV here")
	rootCmd.AddCommand(basinCmd)
}
