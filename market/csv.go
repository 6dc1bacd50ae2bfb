package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Canonical column names. Every loader maps its input onto these once so
// nothing downstream has to care how a vendor spelled its header.
const (
	ColTime   = "time"
	ColOpen   = "open"
	ColHigh   = "high"
	ColLow    = "low"
	ColClose  = "close"
	ColVolume = "volume"
)

var columnAliases = map[string]string{
	"time":      ColTime,
	"date":      ColTime,
	"datetime":  ColTime,
	"timestamp": ColTime,
	"open":      ColOpen,
	"o":         ColOpen,
	"high":      ColHigh,
	"h":         ColHigh,
	"low":       ColLow,
	"l":         ColLow,
	"close":     ColClose,
	"c":         ColClose,
	"volume":    ColVolume,
	"vol":       ColVolume,
	"v":         ColVolume,
}

// NormalizeColumn maps a raw header name to its canonical name. The second
// return is false for columns the loader ignores (e.g. "Adj Close").
func NormalizeColumn(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.Trim(n, "\ufeff\"'")
	n = strings.ReplaceAll(n, "_", " ")
	n = strings.Join(strings.Fields(n), " ")
	canon, ok := columnAliases[n]
	return canon, ok
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// ParseTime accepts the layouts commonly found in exported bar files and
// always returns UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// ReadCSV parses an OHLCV table with a header row. Column names are
// case-insensitive; volume is optional. Rows are returned sorted by time and
// duplicate timestamps are rejected.
func ReadCSV(r io.Reader, symbol string) (Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Series{}, fmt.Errorf("%w: %s: empty csv", ErrData, symbol)
		}
		return Series{}, err
	}

	idx := map[string]int{}
	for i, h := range header {
		if canon, ok := NormalizeColumn(h); ok {
			if _, dup := idx[canon]; !dup {
				idx[canon] = i
			}
		}
	}
	var missing []string
	for _, col := range []string{ColTime, ColOpen, ColHigh, ColLow, ColClose} {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return Series{}, fmt.Errorf("%w: %s: missing columns %s", ErrData, symbol, strings.Join(missing, ","))
	}

	s := Series{Symbol: symbol}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return Series{}, fmt.Errorf("%w: %s line %d: %v", ErrData, symbol, line, err)
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		c, err := parseRow(rec, idx)
		if err != nil {
			return Series{}, fmt.Errorf("%w: %s line %d: %v", ErrData, symbol, line, err)
		}
		s.Candles = append(s.Candles, c)
	}

	sort.SliceStable(s.Candles, func(i, j int) bool {
		return s.Candles[i].Time.Before(s.Candles[j].Time)
	})
	if err := s.Validate(); err != nil {
		return Series{}, err
	}
	return s, nil
}

func parseRow(rec []string, idx map[string]int) (Candle, error) {
	field := func(col string) (string, bool) {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return "", false
		}
		return strings.TrimSpace(rec[i]), true
	}
	num := func(col string) (float64, error) {
		v, ok := field(col)
		if !ok || v == "" {
			return 0, fmt.Errorf("missing %s", col)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("bad %s %q", col, v)
		}
		return f, nil
	}

	var c Candle
	ts, _ := field(ColTime)
	t, err := ParseTime(ts)
	if err != nil {
		return c, err
	}
	c.Time = t
	if c.Open, err = num(ColOpen); err != nil {
		return c, err
	}
	if c.High, err = num(ColHigh); err != nil {
		return c, err
	}
	if c.Low, err = num(ColLow); err != nil {
		return c, err
	}
	if c.Close, err = num(ColClose); err != nil {
		return c, err
	}
	if v, ok := field(ColVolume); ok && v != "" {
		if c.Volume, err = strconv.ParseFloat(v, 64); err != nil {
			return c, fmt.Errorf("bad volume %q", v)
		}
	}
	return c, nil
}

// LoadCSV reads a file; the symbol defaults to the file's base name.
func LoadCSV(path, symbol string) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return Series{}, err
	}
	defer f.Close()

	if symbol == "" {
		symbol = strings.ToUpper(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}
	return ReadCSV(f, symbol)
}

// WriteCSV writes the canonical header followed by one row per candle.
func WriteCSV(w io.Writer, s Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColTime, ColOpen, ColHigh, ColLow, ColClose, ColVolume}); err != nil {
		return err
	}
	for _, c := range s.Candles {
		if err := cw.Write([]string{
			c.Time.Format(time.RFC3339),
			f(c.Open),
			f(c.High),
			f(c.Low),
			f(c.Close),
			f(c.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
