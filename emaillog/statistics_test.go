package emaillog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailrelay/database"
)

func TestStatistics_Today(t *testing.T) {
	l, _, _ := newTestLogger(t)
	ctx := context.Background()
	require.NoError(t, l.LogSent(ctx, "a@example.com", "one"))
	require.NoError(t, l.LogSent(ctx, "b@example.com", "two"))
	require.NoError(t, l.LogFailed(ctx, "c@example.com", "three", "550 mailbox unavailable"))

	got, err := l.Statistics(ctx, PeriodToday)
	require.NoError(t, err)
	assert.Equal(t, Summary{Sent: 2, Failed: 1, Total: 3, SuccessRate: 66.67, FailureRate: 33.33}, got)
}

func TestStatistics_PeriodCutoffs(t *testing.T) {
	l, c, _ := newTestLogger(t)
	for _, days := range []int{0, 1, 7, 8, 30, 31, 400} {
		logDaysAgo(t, l, c, days, database.StatusSent)
	}
	logDaysAgo(t, l, c, 3, database.StatusFailed)

	tests := []struct {
		period string
		sent   int
		failed int
	}{
		{PeriodToday, 1, 0},
		{PeriodWeek, 3, 1},
		{PeriodMonth, 5, 1},
		{PeriodAll, 7, 1},
		{"bogus", 7, 1},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			got, err := l.Statistics(context.Background(), tt.period)
			require.NoError(t, err)
			assert.Equal(t, tt.sent, got.Sent)
			assert.Equal(t, tt.failed, got.Failed)
			assert.Equal(t, got.Sent+got.Failed, got.Total)
			assert.InDelta(t, 100, got.SuccessRate+got.FailureRate, 1e-9)
		})
	}
}

func TestStatistics_Empty(t *testing.T) {
	l, _, _ := newTestLogger(t)
	for _, period := range []string{PeriodToday, PeriodWeek, PeriodMonth, PeriodAll} {
		got, err := l.Statistics(context.Background(), period)
		require.NoError(t, err)
		assert.Equal(t, Summary{}, got)
	}
}

func TestSummarize_RatesAlwaysSumTo100(t *testing.T) {
	for total := 1; total <= 64; total++ {
		for sent := 0; sent <= total; sent++ {
			s := Summarize(sent, total-sent)
			assert.InDelta(t, 100, s.SuccessRate+s.FailureRate, 1e-9, "sent=%d total=%d", sent, total)
		}
	}
	assert.Equal(t, 3.13, Summarize(1, 31).SuccessRate)
	assert.Equal(t, 96.87, Summarize(1, 31).FailureRate)
}

func TestDaily_ZeroFilledAscending(t *testing.T) {
	l, c, _ := newTestLogger(t)
	logDaysAgo(t, l, c, 0, database.StatusSent)
	logDaysAgo(t, l, c, 0, database.StatusFailed)
	logDaysAgo(t, l, c, 2, database.StatusSent)
	logDaysAgo(t, l, c, 3, database.StatusSent) // outside a 3-day window

	got, err := l.Daily(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []DailyStat{
		{Date: "2026-05-18", Sent: 1},
		{Date: "2026-05-19"},
		{Date: "2026-05-20", Sent: 1, Failed: 1},
	}, got)

	week, err := l.Daily(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, week, 7)
}

func TestDailyHourly_WindowCapped(t *testing.T) {
	l, c, _ := newTestLogger(t)
	logDaysAgo(t, l, c, 0, database.StatusSent)
	logDaysAgo(t, l, c, MaxWindowDays, database.StatusSent) // one day outside the cap
	ctx := context.Background()

	for _, days := range []int{MaxWindowDays + 1, 2000000000, 1 << 62} {
		daily, err := l.Daily(ctx, days)
		require.NoError(t, err)
		require.Len(t, daily, MaxWindowDays)
		assert.Equal(t, "2025-05-20", daily[0].Date)
		assert.Equal(t, "2026-05-20", daily[MaxWindowDays-1].Date)

		hourly, err := l.Hourly(ctx, days)
		require.NoError(t, err)
		assert.Len(t, hourly, 1)
	}
}

func TestHourly_BucketsAscending(t *testing.T) {
	l, c, _ := newTestLogger(t)
	ctx := context.Background()

	c.Set(time.Date(2026, 5, 20, 9, 5, 0, 0, time.UTC))
	require.NoError(t, l.LogSent(ctx, "a@example.com", "s"))
	c.Set(time.Date(2026, 5, 20, 9, 55, 0, 0, time.UTC))
	require.NoError(t, l.LogFailed(ctx, "a@example.com", "s", "x"))
	c.Set(time.Date(2026, 5, 19, 23, 10, 0, 0, time.UTC))
	require.NoError(t, l.LogSent(ctx, "a@example.com", "s"))
	c.Set(time.Date(2026, 5, 20, 14, 0, 0, 0, time.UTC))
	require.NoError(t, l.LogSent(ctx, "a@example.com", "s"))
	c.Set(fixedNow)

	got, err := l.Hourly(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []HourlyStat{
		{Date: "2026-05-19", Hour: 23, Sent: 1},
		{Date: "2026-05-20", Hour: 9, Sent: 1, Failed: 1},
		{Date: "2026-05-20", Hour: 14, Sent: 1},
	}, got)
}
