package main

import (
	"flag"
	"os"

	"github.com/plan-systems/klog"

	"github.com/basin-systems/gobasin/cmd/gobasin/commands"
)

func main() {

	fset := flag.NewFlagSet("", flag.ContinueOnError)
	klog.InitFlags(fset)
	fset.Set("logtostderr", "true")
	fset.Set("v", "2")
	klog.SetFormatter(&klog.FmtConstWidth{
		FileNameCharWidth: 16,
		UseColor:          true,
	})

	err := commands.Execute()
	klog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
