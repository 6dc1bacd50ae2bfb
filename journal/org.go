package journal

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/rustyeddy/backtester/backtest"
)

var runOrgFuncs = template.FuncMap{
	"num": orgNum,
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "(date?)"
		}
		return t.Format("2006-01-02")
	},
	"stamp": func(t time.Time) string {
		return t.Format("2006-01-02 Mon 15:04")
	},
	"metric": func(m map[string]float64, name string) string {
		v, ok := m[name]
		if !ok {
			return "N/A"
		}
		return orgNum(v)
	},
	"params": func(r Run) string { return r.Params.String() },
	"names":  metricNames,
}

func orgNum(v float64) string {
	switch {
	case math.IsNaN(v):
		return "N/A"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return fmt.Sprintf("%.2f", v)
}

// metricNames orders the keys of m the way backtest.MetricNames does,
// followed by any unknown keys alphabetically.
func metricNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for _, n := range backtest.MetricNames {
		if _, ok := m[n]; ok {
			names = append(names, n)
		}
	}
	var extra []string
	for n := range m {
		if !backtest.IsMetric(n) {
			extra = append(extra, n)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

type runOrg struct {
	RunDetail
	Trades []backtest.Trade
}

const RunOrgTemplate = `
* {{if eq .Kind "optimize"}}OPTIMIZATION{{else}}BACKTEST{{end}}: {{.Strategy}} {{if .Symbol}}{{.Symbol}}{{else}}(symbol?){{end}}
:PROPERTIES:
:RUN_ID:      {{.ID}}
:KIND:        {{.Kind}}
:STRATEGY:    {{.Strategy}}
:PARAMS:      {{params .Run}}
:SYMBOL:      {{.Symbol}}
:START_DATE:  {{date .Start}}
:END_DATE:    {{date .End}}
:START_BAL:   {{num .InitialCapital}}
:END_BAL:     {{num .FinalEquity}}
{{- if eq .Kind "optimize"}}
:METRIC:      {{.Metric}}
:COMBOS:      {{.Combinations}}
:FAILED:      {{.Failed}}
:PARTIAL:     {{.Partial}}
{{- end}}
:CREATED:     [{{stamp .Created}}]
:END:

** Performance Summary
- Net P/L:          *{{metric .Metrics "total_pnl"}}*
- Return:           *{{metric .Metrics "total_pnl_pct"}}%*
- Max Drawdown:     *{{metric .Metrics "max_drawdown_pct"}}%*
- Win Rate:         *{{metric .Metrics "win_rate_pct"}}%*
- Profit Factor:    *{{metric .Metrics "profit_factor"}}*
- Sharpe:           *{{metric .Metrics "sharpe"}}*

** Metrics
| Metric | Value |
|--------+-------|
{{- range names .Metrics}}
| {{.}} | {{metric $.Metrics .}} |
{{- end}}

{{- if .Trades}}

** Trades
| # | Time | Action | Price | Shares | PnL | Equity |
|---+------+--------+-------+--------+-----+--------|
{{- range .Trades}}
| {{.Seq}} | {{.Time.Format "2006-01-02"}} | {{.Label}} | {{num .Price}} | {{.Shares}} | {{num .PnL}} | {{num .Equity}} |
{{- end}}
{{- end}}

{{- if .Notes}}

** Notes
{{.Notes}}
{{- end}}
`

var runOrgTmpl = template.Must(template.New("run").Funcs(runOrgFuncs).Parse(RunOrgTemplate))

// WriteRunOrg renders a run as an org-mode entry.
func WriteRunOrg(w io.Writer, run RunDetail, trades []backtest.Trade) error {
	var b strings.Builder
	if err := runOrgTmpl.Execute(&b, runOrg{RunDetail: run, Trades: trades}); err != nil {
		return fmt.Errorf("journal: render run %s: %w", run.ID, err)
	}
	_, err := io.WriteString(w, strings.TrimLeft(b.String(), "\n")+"\n")
	return err
}
