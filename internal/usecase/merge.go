package usecase

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"FMPull/internal/domain/models"
)

// MergeComposite outer-joins per-indicator frames on "date". Each frame's
// "value" column becomes "<key>_<label>". Dates missing from an indicator,
// and labels with no frame at all, read as NaN.
func MergeComposite(key string, labels []string, frames map[string]*models.Frame) *models.Frame {
	byDate := make(map[string]models.Row)
	columns := []string{"date"}

	for _, label := range labels {
		col := key + "_" + label
		columns = append(columns, col)

		f := frames[label]
		if f == nil {
			continue
		}
		for _, r := range f.Rows {
			date, ok := r["date"].(string)
			if !ok || date == "" {
				continue
			}
			row, ok := byDate[date]
			if !ok {
				row = models.Row{"date": date}
				byDate[date] = row
			}
			row[col] = toFloat(r["value"])
		}
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	rows := make([]models.Row, 0, len(dates))
	for _, d := range dates {
		row := byDate[d]
		for _, col := range columns[1:] {
			if _, ok := row[col]; !ok {
				row[col] = math.NaN()
			}
		}
		rows = append(rows, row)
	}
	return &models.Frame{Columns: columns, Rows: rows}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return f
		}
	}
	return math.NaN()
}
