package influx

import (
	"github.com/openziti/cadence/cmd/cadence/cadence"
	"github.com/spf13/cobra"
)

func init() {
	influxCmd.PersistentFlags().StringVarP(&influxDbUrl, "url", "", "http://localhost:8086", "InfluxDB URL")
	influxCmd.PersistentFlags().StringVarP(&influxDbUsername, "username", "", "", "InfluxDB Username")
	influxCmd.PersistentFlags().StringVarP(&influxDbPassword, "password", "", "", "InfluxDB Password")
	influxCmd.PersistentFlags().StringVarP(&influxDbDatabase, "database", "", "cadence", "InfluxDB Database")
	cadence.RootCmd.AddCommand(influxCmd)
}

var influxCmd = &cobra.Command{
	Use:   "influx",
	Short: "Manage timing analyzer data in InfluxDB",
}

var influxDbUrl string
var influxDbUsername string
var influxDbPassword string
var influxDbDatabase string

var datasets = []string{
	"rtt_ms",
	"rto_ms",
	"retx_ms",
	"probe_ms",
	"admissions",
	"rejections",
	"releases",
	"call_timeouts",
	"aborts",
	"queue_full",
}
