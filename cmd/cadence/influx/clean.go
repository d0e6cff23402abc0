package influx

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	influxCmd.AddCommand(influxCleanCmd)
}

var influxCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean timing datasets from previous analyzer runs",
	Args:  cobra.NoArgs,
	Run:   influxClean,
}

// influxClean drops only the measurements this tool writes (the dataset names
// from load), leaving anything else in the database alone.
func influxClean(_ *cobra.Command, _ []string) {
	present, err := influxMeasurements()
	if err != nil {
		logrus.Fatalf("error listing series (%v)", err)
	}
	for _, dataset := range datasets {
		if _, found := present[dataset]; !found {
			continue
		}
		if err := influxDropSeries(dataset); err != nil {
			logrus.Fatalf("error dropping [%s] (%v)", dataset, err)
		}
		logrus.Infof("dropped [%s]", dataset)
	}
}

// influxMeasurements returns the set of measurement names present in the
// database. SHOW SERIES keys are "measurement,tag=value,..."; only the
// measurement matters here.
func influxMeasurements() (map[string]struct{}, error) {
	results, err := influxQuery("SHOW SERIES")
	if err != nil {
		return nil, err
	}
	present := make(map[string]struct{})
	rs, _ := results["results"].([]interface{})
	for _, r := range rs {
		series, _ := r.(map[string]interface{})["series"].([]interface{})
		for _, s := range series {
			values, _ := s.(map[string]interface{})["values"].([]interface{})
			for _, row := range values {
				cells, _ := row.([]interface{})
				for _, cell := range cells {
					key, _ := cell.(string)
					if i := strings.Index(key, ","); i != -1 {
						key = key[:i]
					}
					if key != "" {
						present[key] = struct{}{}
					}
				}
			}
		}
	}
	return present, nil
}

func influxDropSeries(series string) error {
	_, err := influxQuery(fmt.Sprintf("DROP SERIES FROM \"%s\"", series))
	return err
}

func influxQuery(q string) (map[string]interface{}, error) {
	resp, err := http.Get(fmt.Sprintf("%s/query?db=%s&q=%s", influxDbUrl, influxDbDatabase, url.QueryEscape(q)))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("query failed [%d]: %s", resp.StatusCode, data)
	}
	results := make(map[string]interface{})
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, err
	}
	return results, nil
}
