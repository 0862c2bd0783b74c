package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the day format used in CSV files and reports.
const DateLayout = "2006-01-02"

// LoadCSV reads a price file. Two layouts are accepted:
//
//	date,SPY,AGG,...        wide: one column per ticker
//	date,ticker,close       long: one row per ticker and date
//
// The header row is required. Dates are YYYY-MM-DD or RFC3339. Every ticker
// must have a price on every date; gaps are errors.
func LoadCSV(path string) (*PriceHistory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

func ReadCSV(r io.Reader) (*PriceHistory, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty price file")
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) < 2 || !isDateColumn(header[0]) {
		return nil, fmt.Errorf("header must start with a date column, got %q", strings.Join(header, ","))
	}

	if isLongHeader(header) {
		return readLong(cr)
	}
	return readWide(cr, header[1:])
}

func isDateColumn(s string) bool {
	switch strings.ToLower(s) {
	case "date", "time", "timestamp":
		return true
	}
	return false
}

func isLongHeader(h []string) bool {
	if len(h) != 3 {
		return false
	}
	k := strings.ToLower(h[1])
	v := strings.ToLower(h[2])
	return (k == "ticker" || k == "symbol" || k == "asset") &&
		(v == "close" || v == "price" || v == "adj_close")
}

func readWide(cr *csv.Reader, tickers []string) (*PriceHistory, error) {
	var dates []time.Time
	cols := make([][]float64, len(tickers))
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if blank(row) {
			continue
		}
		if len(row) != len(tickers)+1 {
			return nil, fmt.Errorf("line %d: %d fields, want %d", line, len(row), len(tickers)+1)
		}
		d, err := parseDate(row[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		dates = append(dates, d)
		for j := range tickers {
			p, err := parsePrice(row[j+1])
			if err != nil {
				return nil, fmt.Errorf("line %d %s: %w", line, tickers[j], err)
			}
			cols[j] = append(cols[j], p)
		}
	}
	return NewPriceHistory(tickers, dates, cols)
}

func readLong(cr *csv.Reader) (*PriceHistory, error) {
	byDate := map[time.Time]map[string]float64{}
	var tickers []string
	seen := map[string]bool{}
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if blank(row) {
			continue
		}
		if len(row) != 3 {
			return nil, fmt.Errorf("line %d: %d fields, want 3", line, len(row))
		}
		d, err := parseDate(row[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		tk := strings.TrimSpace(row[1])
		if tk == "" {
			return nil, fmt.Errorf("line %d: empty ticker", line)
		}
		p, err := parsePrice(row[2])
		if err != nil {
			return nil, fmt.Errorf("line %d %s: %w", line, tk, err)
		}
		if !seen[tk] {
			seen[tk] = true
			tickers = append(tickers, tk)
		}
		if byDate[d] == nil {
			byDate[d] = map[string]float64{}
		}
		if _, dup := byDate[d][tk]; dup {
			return nil, fmt.Errorf("line %d: duplicate %s on %s", line, tk, d.Format(DateLayout))
		}
		byDate[d][tk] = p
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	cols := make([][]float64, len(tickers))
	for _, d := range dates {
		for j, tk := range tickers {
			p, ok := byDate[d][tk]
			if !ok {
				return nil, fmt.Errorf("missing %s price on %s", tk, d.Format(DateLayout))
			}
			cols[j] = append(cols[j], p)
		}
	}
	return NewPriceHistory(tickers, dates, cols)
}

func blank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("missing price")
	}
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad price %q: %w", s, err)
	}
	return p, nil
}

// WriteCSV writes h in the wide layout.
func WriteCSV(w io.Writer, h *PriceHistory) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"date"}, h.assets...)); err != nil {
		return err
	}
	row := make([]string, len(h.assets)+1)
	for t, d := range h.dates {
		row[0] = d.Format(DateLayout)
		for j := range h.assets {
			row[j+1] = strconv.FormatFloat(h.cols[j][t], 'f', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
