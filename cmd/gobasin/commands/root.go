// Package commands wires the gobasin CLI: batch runs over a
// snapshot-tagged link sequence store.
package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/basin-systems/gobasin/gobasin"
	"github.com/basin-systems/gobasin/libbasin/store"
)

var rootCmd = &cobra.Command{
	Use:           "gobasin",
	Short:         "N-th link functional graph analytics over a static link snapshot",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("db", "", "path of the link sequence store (empty = in-memory)")
	pf.String("snapshot", "", "snapshot tag the store must carry")
	pf.String("index-dir", "", "directory for materialized reverse indexes (empty = in-memory)")
	pf.String("run-tag", "run", "tag stamped on every exported artifact")
	pf.Int("workers", 0, "intra-layer BFS workers (0 = auto)")
	pf.Bool("wrap", false, "wrap N onto short link lists instead of halting")

	viper.BindPFlags(pf)
	viper.SetEnvPrefix("GOBASIN")
	viper.AutomaticEnv()
}

func evalMode() gobasin.EvalMode {
	if viper.GetBool("wrap") {
		return gobasin.EvalWrap
	}
	return gobasin.EvalHalt
}

func openStore(readOnly bool) (*store.Store, error) {
	return store.Open(gobasin.StoreOpts{
		DbPathName:  viper.GetString("db"),
		ReadOnly:    readOnly,
		SnapshotTag: viper.GetString("snapshot"),
	})
}
