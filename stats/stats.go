// Package stats shapes email log statistics for the admin dashboard. It
// holds no state: every call reads through to the email log.
package stats

import (
	"context"
	"fmt"
	"time"

	"mailrelay/database"
	"mailrelay/emaillog"
)

const labelDay = "Jan 2"

// Source is the part of emaillog.Logger the aggregator reads.
type Source interface {
	Statistics(ctx context.Context, period string) (emaillog.Summary, error)
	Daily(ctx context.Context, days int) ([]emaillog.DailyStat, error)
	Hourly(ctx context.Context, days int) ([]emaillog.HourlyStat, error)
}

// ChartData holds positionally aligned series, oldest first. Total is only
// filled for daily data.
type ChartData struct {
	Labels []string `json:"labels"`
	Sent   []int    `json:"sent"`
	Failed []int    `json:"failed"`
	Total  []int    `json:"total,omitempty"`
}

// Trends compares the current period against the previous one, in percent.
type Trends struct {
	SentChange        float64 `json:"sent_change"`
	FailedChange      float64 `json:"failed_change"`
	SuccessRateChange float64 `json:"success_rate_change"`
}

type KeyMetrics struct {
	Today  emaillog.Summary `json:"today"`
	Week   emaillog.Summary `json:"week"`
	Month  emaillog.Summary `json:"month"`
	Trends Trends           `json:"trends"`
}

type Aggregator struct {
	src Source
}

func New(src Source) *Aggregator {
	return &Aggregator{src: src}
}

// ChartData returns hourly buckets labelled "Mon D, HH:00".
func (a *Aggregator) ChartData(ctx context.Context, days int) (ChartData, error) {
	hourly, err := a.src.Hourly(ctx, days)
	if err != nil {
		return ChartData{}, err
	}
	out := ChartData{
		Labels: make([]string, 0, len(hourly)),
		Sent:   make([]int, 0, len(hourly)),
		Failed: make([]int, 0, len(hourly)),
	}
	for _, h := range hourly {
		out.Labels = append(out.Labels, fmt.Sprintf("%s, %02d:00", formatDate(h.Date), h.Hour))
		out.Sent = append(out.Sent, h.Sent)
		out.Failed = append(out.Failed, h.Failed)
	}
	return out, nil
}

// DailyChartData returns daily buckets labelled "Mon D".
func (a *Aggregator) DailyChartData(ctx context.Context, days int) (ChartData, error) {
	daily, err := a.src.Daily(ctx, days)
	if err != nil {
		return ChartData{}, err
	}
	out := ChartData{
		Labels: make([]string, 0, len(daily)),
		Sent:   make([]int, 0, len(daily)),
		Failed: make([]int, 0, len(daily)),
		Total:  make([]int, 0, len(daily)),
	}
	for _, d := range daily {
		out.Labels = append(out.Labels, formatDate(d.Date))
		out.Sent = append(out.Sent, d.Sent)
		out.Failed = append(out.Failed, d.Failed)
		out.Total = append(out.Total, d.Sent+d.Failed)
	}
	return out, nil
}

// KeyMetrics returns the today, week and month summaries.
func (a *Aggregator) KeyMetrics(ctx context.Context) (KeyMetrics, error) {
	var out KeyMetrics
	var err error
	if out.Today, err = a.src.Statistics(ctx, emaillog.PeriodToday); err != nil {
		return KeyMetrics{}, err
	}
	if out.Week, err = a.src.Statistics(ctx, emaillog.PeriodWeek); err != nil {
		return KeyMetrics{}, err
	}
	if out.Month, err = a.src.Statistics(ctx, emaillog.PeriodMonth); err != nil {
		return KeyMetrics{}, err
	}
	out.Trends = calculateTrends(out.Week)
	return out, nil
}

// calculateTrends reports no change.
// TODO: compare against the previous week once Source can query a closed
// date range rather than a trailing window.
func calculateTrends(emaillog.Summary) Trends {
	return Trends{}
}

func formatDate(date string) string {
	t, err := time.Parse(database.DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format(labelDay)
}
