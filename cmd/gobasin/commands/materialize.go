package commands

import (
	"fmt"
	"path/filepath"

	"github.com/plan-systems/klog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/basin-systems/gobasin/gobasin"
	"github.com/basin-systems/gobasin/libbasin/rindex"
)

var materializeRule int

var materializeCmd = &cobra.Command{
	Use:   "materialize",
	Short: "Build the on-disk reverse-adjacency index for one rule",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(true)
		if err != nil {
			return err
		}
		defer st.Close()

		dir := viper.GetString("index-dir")
		opts := gobasin.IndexOpts{Mode: evalMode()}
		if len(dir) > 0 {
			opts.DbPathName = filepath.Join(dir, fmt.Sprintf("rindex-n%03d", materializeRule))
		}

		ix, err := rindex.Materialize(cmd.Context(), st, gobasin.NRule(materializeRule), opts)
		if err != nil {
			return err
		}
		defer ix.Close()

		klog.Infof("reverse index n=%d: %d edges, %d dangling skipped, snapshot %q",
			ix.Rule(), ix.EdgeCount(), ix.DanglingCount(), ix.Snapshot())
		return nil
	},
}

func init() {
	materializeCmd.Flags().IntVar(&materializeRule, "n", 1, "link rule N (1-indexed)")
	rootCmd.AddCommand(materializeCmd)
}
