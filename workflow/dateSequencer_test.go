package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextReportDate(t *testing.T) {
	cases := []struct {
		name string
		last time.Time
		want time.Time
	}{
		{
			name: "mid month",
			last: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "month rollover",
			last: time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "year rollover",
			last: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "leap february",
			last: time.Date(2028, 2, 28, 0, 0, 0, 0, time.UTC),
			want: time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, NextReportDate(tc.last).Equal(tc.want))
		})
	}
}
