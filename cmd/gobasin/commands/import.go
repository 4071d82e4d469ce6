package commands

import (
	"os"

	"github.com/plan-systems/klog"
	"github.com/spf13/cobra"
)

var (
	pagesPath string
	linksPath string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the page identity and link sequence tables into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(false)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		if len(pagesPath) > 0 {
			f, err := os.Open(pagesPath)
			if err != nil {
				return err
			}
			n, err := st.ImportPages(ctx, f)
			f.Close()
			if err != nil {
				return err
			}
			klog.Infof("imported %d pages from %s", n, pagesPath)
		}
		if len(linksPath) > 0 {
			f, err := os.Open(linksPath)
			if err != nil {
				return err
			}
			n, err := st.ImportSequences(ctx, f)
			f.Close()
			if err != nil {
				return err
			}
			klog.Infof("imported %d link sequences from %s", n, linksPath)
		}

		info := st.Snapshot()
		klog.Infof("store %q now holds %d pages, %d sequences", info.Tag, info.PageCount, info.SeqCount)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&pagesPath, "pages", "", "CSV of id,title,namespace,is_redirect rows")
	importCmd.Flags().StringVar(&linksPath, "links", "", "CSV of id,target1,target2,... rows")
	rootCmd.AddCommand(importCmd)
}
