package scrape

import (
	"testing"
	"time"
)

func TestNormalizeDate(t *testing.T) {
	now := time.Date(2024, 9, 15, 13, 45, 0, 0, time.UTC)

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "ISO passes through", raw: "2024-08-23", want: "2024-08-23"},
		{name: "Dot separated", raw: "2024.08.23", want: "2024-08-23"},
		{name: "Slash separated", raw: "2024/08/23", want: "2024-08-23"},
		{name: "Compact eight digits", raw: "20240823", want: "2024-08-23"},
		{name: "Korean unit suffixes", raw: "2024년 8월 23일", want: "2024-08-23"},
		{name: "Single digit month and day", raw: "2024.8.3", want: "2024-08-03"},
		{name: "Surrounding whitespace", raw: "  2024-08-23  ", want: "2024-08-23"},
		{name: "Range keeps start date", raw: "2024-08-23 ~ 2024-09-03", want: "2024-08-23"},
		{name: "Range without spaces", raw: "2024.08.23~2024.09.03", want: "2024-08-23"},
		{name: "Future date clamps to today", raw: "2024-12-31", want: "2024-09-15"},
		{name: "Future range start clamps", raw: "2025-01-01 ~ 2025-02-01", want: "2024-09-15"},
		{name: "Empty string", raw: "", wantErr: true},
		{name: "Whitespace only", raw: "   ", wantErr: true},
		{name: "No date at all", raw: "상시모집", wantErr: true},
		{name: "Impossible calendar date", raw: "2024-02-30", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDate(tt.raw, now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeDate(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
