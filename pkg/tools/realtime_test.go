package tools

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateTimeAt(t *testing.T) {
	// 2026-08-26 is a Wednesday.
	at := time.Date(2026, 8, 26, 15, 30, 0, 0, time.Local)

	result := dateTimeAt(at)
	require.NotNil(t, result)

	assert.Equal(t, "2026年08月26日", result.Date)
	assert.Equal(t, "15:30", result.Time)
	assert.Equal(t, "星期三", result.Weekday)
	assert.Equal(t, "下午", result.Period)
	assert.Equal(t, "2026年08月26日 星期三 下午 15:30", result.Formatted)
}

func TestDateTimeAt_Periods(t *testing.T) {
	cases := []struct {
		hour   int
		period string
	}{
		{5, "早上"},
		{8, "早上"},
		{9, "上午"},
		{12, "中午"},
		{13, "中午"},
		{14, "下午"},
		{18, "晚上"},
		{21, "晚上"},
		{22, "深夜"},
		{2, "深夜"},
	}
	for _, tc := range cases {
		at := time.Date(2026, 8, 26, tc.hour, 0, 0, 0, time.Local)
		assert.Equal(t, tc.period, dateTimeAt(at).Period, "hour %d", tc.hour)
	}
}

func TestNow(t *testing.T) {
	result := Now()
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Formatted)
	assert.NotEmpty(t, result.Timestamp)
}

func TestWeatherCodeCoverage(t *testing.T) {
	// The usual code families are all mapped.
	for _, code := range []int{0, 3, 45, 61, 75, 95} {
		_, ok := weatherCodeDesc[code]
		assert.True(t, ok, "code %d", code)
	}
}

func TestCityCoords(t *testing.T) {
	coords, ok := cityCoords["深圳"]
	require.True(t, ok)
	assert.InDelta(t, 22.55, coords[0], 0.01)
	assert.InDelta(t, 114.07, coords[1], 0.01)
}
