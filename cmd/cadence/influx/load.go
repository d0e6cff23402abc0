package influx

import (
	"fmt"
	"path/filepath"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/openziti/cadence/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	influxCmd.AddCommand(influxLoadCmd)
}

var influxLoadCmd = &cobra.Command{
	Use:   "load <metricsRoot>",
	Short: "Load captured timing metrics into the analyzer",
	Args:  cobra.ExactArgs(1),
	Run:   influxLoad,
}

func influxLoad(_ *cobra.Command, args []string) {
	captures, err := util.DiscoverMetrics(args[0])
	if err != nil {
		logrus.Fatalf("error discovering metrics under [%s] (%v)", args[0], err)
	}
	if len(captures) < 1 {
		logrus.Warnf("no captures under [%s]", args[0])
		return
	}

	authToken := ""
	if influxDbUsername != "" || influxDbPassword != "" {
		authToken = fmt.Sprintf("%s:%s", influxDbUsername, influxDbPassword)
	}
	client := influxdb2.NewClient(influxDbUrl, authToken)
	writeApi := client.WriteAPI("", influxDbDatabase)

	for root, mid := range captures {
		peer := filepath.Base(root)
		if v, found := mid.Values["peer"]; found {
			peer = v
		}
		for _, dataset := range datasets {
			data, err := util.ReadSamples(filepath.Join(root, dataset+".csv"))
			if err != nil {
				logrus.Warnf("skipping dataset [%s] for [%s] (%v)", dataset, root, err)
				continue
			}
			for ts, v := range data {
				p := influxdb2.NewPoint(dataset, nil, map[string]interface{}{"v": v}, time.Unix(0, ts)).AddTag("peer", peer)
				writeApi.WritePoint(p)
			}
			logrus.Infof("wrote %d points for peer [%s] dataset [%s]", len(data), peer, dataset)
		}
	}

	client.Close()
}
