package model

import (
	"testing"
	"time"
)

func TestLookupPlan_UnknownCode(t *testing.T) {
	for _, code := range []string{"", "2m", "free", "1M"} {
		if _, ok := LookupPlan(code); ok {
			t.Errorf("LookupPlan(%q) should not be found", code)
		}
	}
}

// TestPlan_EndDate はプランごとの期間が暦に沿って加算されることを検証する。
func TestPlan_EndDate(t *testing.T) {
	from := time.Date(2024, 5, 10, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		code string
		want time.Time
	}{
		{"1d", time.Date(2024, 5, 11, 12, 30, 0, 0, time.UTC)},
		{"3d", time.Date(2024, 5, 13, 12, 30, 0, 0, time.UTC)},
		{"1m", time.Date(2024, 6, 10, 12, 30, 0, 0, time.UTC)},
		{"3m", time.Date(2024, 8, 10, 12, 30, 0, 0, time.UTC)},
		{"6m", time.Date(2024, 11, 10, 12, 30, 0, 0, time.UTC)},
		{"1y", time.Date(2025, 5, 10, 12, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			p, ok := LookupPlan(tt.code)
			if !ok {
				t.Fatalf("plan %q not found", tt.code)
			}
			if got := p.EndDate(from); !got.Equal(tt.want) {
				t.Errorf("EndDate = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestPlan_EndDate_MonthOverflowRollsForward は存在しない日付が翌月に繰り越されることを検証する。
// 2024-02-31 は存在しないため、2024-03-02 になる。
func TestPlan_EndDate_MonthOverflowRollsForward(t *testing.T) {
	p, _ := LookupPlan("1m")
	from := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)

	got := p.EndDate(from)
	want := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("EndDate = %v, want %v", got, want)
	}
	if got.Month() != time.March {
		t.Errorf("month = %v, want March", got.Month())
	}
}

func TestPlan_EndDate_LeapYear(t *testing.T) {
	p, _ := LookupPlan("1y")
	from := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)

	want := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := p.EndDate(from); !got.Equal(want) {
		t.Errorf("EndDate = %v, want %v", got, want)
	}
}

func TestPlan_Amount(t *testing.T) {
	p, _ := LookupPlan("3m")
	if got := p.Amount(); got != "2490.00" {
		t.Errorf("Amount = %q, want %q", got, "2490.00")
	}
}
