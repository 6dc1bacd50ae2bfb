package report

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/optimize"
)

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteTradesCSV writes the trade log, one row per open or close.
func WriteTradesCSV(w io.Writer, trades []backtest.Trade) error {
	cw := csv.NewWriter(w)
	err := cw.Write([]string{
		"seq", "entry_seq", "time", "label", "side", "action", "trigger", "level",
		"price", "shares", "cost", "revenue", "commission", "margin", "pnl", "equity",
	})
	if err != nil {
		return err
	}
	for _, t := range trades {
		err := cw.Write([]string{
			strconv.Itoa(t.Seq),
			strconv.Itoa(t.EntrySeq),
			t.Time.Format(time.RFC3339),
			t.Label(),
			t.Side.String(),
			t.Action.String(),
			t.Trigger.String(),
			f(t.Level),
			f(t.Price),
			strconv.FormatInt(t.Shares, 10),
			f(t.Cost),
			f(t.Revenue),
			f(t.Commission),
			f(t.Margin),
			f(t.PnL),
			f(t.Equity),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV writes the strategy curve next to buy & hold.
func WriteEquityCSV(w io.Writer, equity, buyHold []backtest.Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "equity", "buy_hold"}); err != nil {
		return err
	}
	for i, p := range equity {
		bh := ""
		if i < len(buyHold) {
			bh = f(buyHold[i].Value)
		}
		if err := cw.Write([]string{p.Time.Format(time.RFC3339), f(p.Value), bh}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRowsCSV writes an optimization table: index, one column per
// parameter, score, every metric and the error. Failed rows leave score and
// metrics blank.
func WriteRowsCSV(w io.Writer, rows []optimize.Row) error {
	params := paramNames(rows)

	header := []string{"index"}
	header = append(header, params...)
	header = append(header, "score")
	header = append(header, backtest.MetricNames...)
	header = append(header, "error")

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, strconv.Itoa(r.Index))
		for _, name := range params {
			if v, ok := r.Params[name]; ok {
				rec = append(rec, f(v))
			} else {
				rec = append(rec, "")
			}
		}

		if r.OK() {
			rec = append(rec, f(r.Score))
			for _, name := range backtest.MetricNames {
				if v, ok := r.Metrics[name]; ok {
					rec = append(rec, f(v))
				} else {
					rec = append(rec, "")
				}
			}
			rec = append(rec, "")
		} else {
			rec = append(rec, "")
			for range backtest.MetricNames {
				rec = append(rec, "")
			}
			rec = append(rec, r.Err.Error())
		}

		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func paramNames(rows []optimize.Row) []string {
	seen := map[string]bool{}
	var names []string
	for _, r := range rows {
		for name := range r.Params {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}
