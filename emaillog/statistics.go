package emaillog

import (
	"context"
	"math"
	"sort"

	"mailrelay/database"
)

// Period filters accepted by Statistics.
const (
	PeriodToday = "today"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodAll   = "all"
)

const defaultWindowDays = 7

// MaxWindowDays caps the window of Daily and Hourly.
const MaxWindowDays = 366

// windowDays applies the default and the cap to a requested window.
func windowDays(days int) int {
	switch {
	case days <= 0:
		return defaultWindowDays
	case days > MaxWindowDays:
		return MaxWindowDays
	default:
		return days
	}
}

// Summary counts sent and failed entries over a period. Rates are
// percentages rounded to two decimals and are both 0 when Total is 0.
type Summary struct {
	Sent        int     `json:"sent"`
	Failed      int     `json:"failed"`
	Total       int     `json:"total"`
	SuccessRate float64 `json:"success_rate"`
	FailureRate float64 `json:"failure_rate"`
}

// Summarize builds a Summary from raw counts. FailureRate is derived from
// the rounded SuccessRate so the two always add up to 100.
func Summarize(sent, failed int) Summary {
	s := Summary{Sent: sent, Failed: failed, Total: sent + failed}
	if s.Total == 0 {
		return s
	}
	s.SuccessRate = round2(float64(sent) / float64(s.Total) * 100)
	s.FailureRate = round2(100 - s.SuccessRate)
	return s
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// DailyStat is the number of sent and failed entries on one calendar day.
type DailyStat struct {
	Date   string `json:"date"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
}

// HourlyStat is the number of sent and failed entries in one hour of a day.
type HourlyStat struct {
	Date   string `json:"date"`
	Hour   int    `json:"hour"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
}

// periodCutoff maps a period to the first date it includes; "" means all.
func (l *Logger) periodCutoff(period string) string {
	today := l.today()
	switch period {
	case PeriodToday:
		return today.Format(database.DateLayout)
	case PeriodWeek:
		return today.AddDate(0, 0, -7).Format(database.DateLayout)
	case PeriodMonth:
		return today.AddDate(0, 0, -30).Format(database.DateLayout)
	default:
		return ""
	}
}

// Statistics counts entries dated on or after the period's cutoff. An
// unknown period is treated as "all".
func (l *Logger) Statistics(ctx context.Context, period string) (Summary, error) {
	logs, err := l.db.QueryLogs(ctx, database.LogFilter{Since: l.periodCutoff(period)})
	if err != nil {
		return Summary{}, err
	}
	var sent, failed int
	for _, entry := range logs {
		switch entry.Status {
		case database.StatusSent:
			sent++
		case database.StatusFailed:
			failed++
		}
	}
	return Summarize(sent, failed), nil
}

// windowStart is the first day of a window of days calendar days ending today.
func (l *Logger) windowStart(days int) string {
	return l.today().AddDate(0, 0, -(days - 1)).Format(database.DateLayout)
}

// Daily returns one bucket per calendar day for the last days days
// (including today), oldest first. Days without entries are zero.
// days <= 0 means 7; larger windows are capped at MaxWindowDays.
func (l *Logger) Daily(ctx context.Context, days int) ([]DailyStat, error) {
	days = windowDays(days)
	logs, err := l.db.QueryLogs(ctx, database.LogFilter{Since: l.windowStart(days)})
	if err != nil {
		return nil, err
	}

	out := make([]DailyStat, days)
	index := make(map[string]int, days)
	start := l.today().AddDate(0, 0, -(days - 1))
	for i := range out {
		date := start.AddDate(0, 0, i).Format(database.DateLayout)
		out[i].Date = date
		index[date] = i
	}
	for _, entry := range logs {
		i, ok := index[entry.LogDate]
		if !ok {
			continue
		}
		switch entry.Status {
		case database.StatusSent:
			out[i].Sent++
		case database.StatusFailed:
			out[i].Failed++
		}
	}
	return out, nil
}

// Hourly returns a bucket for every (day, hour) with at least one entry in
// the same window as Daily, oldest first.
func (l *Logger) Hourly(ctx context.Context, days int) ([]HourlyStat, error) {
	days = windowDays(days)
	logs, err := l.db.QueryLogs(ctx, database.LogFilter{Since: l.windowStart(days)})
	if err != nil {
		return nil, err
	}

	type key struct {
		date string
		hour int
	}
	buckets := make(map[key]*HourlyStat)
	for _, entry := range logs {
		k := key{date: entry.LogDate, hour: entry.CreatedAt.In(l.loc).Hour()}
		b, ok := buckets[k]
		if !ok {
			b = &HourlyStat{Date: k.date, Hour: k.hour}
			buckets[k] = b
		}
		switch entry.Status {
		case database.StatusSent:
			b.Sent++
		case database.StatusFailed:
			b.Failed++
		}
	}

	out := make([]HourlyStat, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Hour < out[j].Hour
	})
	return out, nil
}
