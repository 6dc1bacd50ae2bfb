package report

import (
	"math"
	"sort"

	"github.com/rustyeddy/backtester/optimize"
)

// TopN returns the successful rows with the highest value of metric, best
// first. Equal values keep enumeration order. n <= 0 returns all of them.
func TopN(rows []optimize.Row, metric string, n int) []optimize.Row {
	var out []optimize.Row
	for _, r := range rows {
		if !r.OK() {
			continue
		}
		if v, ok := r.Metrics[metric]; ok && !math.IsNaN(v) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metrics[metric] > out[j].Metrics[metric]
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
