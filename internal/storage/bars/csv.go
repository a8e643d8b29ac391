package bars

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/cta/internal/core"
)

// timeLayouts are the datetime formats accepted in the first CSV column
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"20060102",
}

// ReadCSV parses datetime,open,high,low,close,volume rows. A leading header
// row is skipped. Times without a zone are read as UTC.
func ReadCSV(r io.Reader, symbol string, interval core.Interval) ([]core.Bar, error) {
	var out []core.Bar
	err := readRows(r, 6, func(line int, row []string, at time.Time) error {
		v, err := parseFloats(row[1:6])
		if err != nil {
			return err
		}
		b := core.Bar{
			Symbol:   symbol,
			Interval: interval,
			Open:     v[0],
			High:     v[1],
			Low:      v[2],
			Close:    v[3],
			Volume:   v[4],
			Time:     at,
		}
		if b.High < b.Low || b.Open <= 0 || b.Close <= 0 {
			return fmt.Errorf("inconsistent prices o=%g h=%g l=%g c=%g", b.Open, b.High, b.Low, b.Close)
		}
		out = append(out, b)
		return nil
	})
	return out, err
}

// ReadTickCSV parses datetime,price,volume[,bid,ask] rows, where volume is the
// cumulative session volume. A leading header row is skipped.
func ReadTickCSV(r io.Reader, symbol string) ([]core.Tick, error) {
	var out []core.Tick
	err := readRows(r, 3, func(line int, row []string, at time.Time) error {
		n := min(len(row), 5)
		v, err := parseFloats(row[1:n])
		if err != nil {
			return err
		}
		t := core.Tick{
			Symbol:    symbol,
			LastPrice: v[0],
			Volume:    v[1],
			Time:      at,
		}
		if len(v) > 2 {
			t.Bid = v[2]
		}
		if len(v) > 3 {
			t.Ask = v[3]
		}
		if !t.IsValid() {
			return fmt.Errorf("price must be positive, got %g", t.LastPrice)
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

func readRows(r io.Reader, minFields int, fn func(line int, row []string, at time.Time) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	line := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return core.WrapError(core.ErrInvalidData, fmt.Errorf("line %d: %w", line, err))
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}

		at, terr := parseTime(row[0])
		if terr != nil && line == 1 {
			continue // header
		}
		if terr != nil {
			return core.WrapError(core.ErrInvalidData, fmt.Errorf("line %d: %w", line, terr))
		}
		if len(row) < minFields {
			return core.WrapError(core.ErrInvalidData, fmt.Errorf("line %d: want %d fields, got %d", line, minFields, len(row)))
		}
		if err := fn(line, row, at); err != nil {
			return core.WrapError(core.ErrInvalidData, fmt.Errorf("line %d: %w", line, err))
		}
	}
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i+2, err)
		}
		out[i] = v
	}
	return out, nil
}
