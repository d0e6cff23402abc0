package sim

import (
	"github.com/openziti/cadence/cmd/cadence/cadence"
	"github.com/spf13/cobra"
)

func init() {
	simCmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (yaml)")
	simCmd.Flags().BoolVarP(&configDump, "dump", "d", false, "Dump the processed config")
	simCmd.Flags().Float64VarP(&lossFraction, "loss", "l", 0.02, "Fraction of segments lost in transit")
	simCmd.Flags().IntVar(&linkRttMs, "rtt-ms", 120, "Base link round trip (ms)")
	simCmd.Flags().IntVar(&linkJitterMs, "jitter-ms", 40, "Round trip jitter (ms)")
	simCmd.Flags().IntVar(&runSeconds, "seconds", 30, "Simulation duration (s)")
	simCmd.Flags().StringVarP(&metricsRoot, "metrics", "m", "", "Write metrics CSVs under this root")
	cadence.RootCmd.AddCommand(simCmd)
}

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Exercise the timing core over a synthetic lossy link",
	Args:  cobra.NoArgs,
	Run:   sim,
}

var configPath string
var configDump bool
var lossFraction float64
var linkRttMs int
var linkJitterMs int
var runSeconds int
var metricsRoot string
