package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/grayscalebench/internal/bench"
	"github.com/cwbudde/grayscalebench/internal/compute"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List GPU devices of every OpenCL platform",
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	b := bench.New(openDriver(), bench.Options{})
	defer b.Close()

	devices, reason := b.ListDevices()
	if len(devices) == 0 {
		fmt.Printf("No GPU devices available (%s): %v\n", compute.Kind(reason), reason)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tPLATFORM\tVENDOR\tMEMORY")
	fmt.Fprintln(w, "-----\t----\t--------\t------\t------")
	for _, d := range devices {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", d.Index, d.Name, d.Platform, d.Vendor, formatBytes(int64(d.MemoryBytes)))
	}
	w.Flush()

	fmt.Printf("\nTotal devices: %d\n", len(devices))
	return nil
}
