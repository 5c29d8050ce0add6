package obstetrics

import (
	"testing"
	"time"
)

func TestWeeksFromEDD(t *testing.T) {
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		edd  time.Time
		want int
	}{
		{"due today", today, 40},
		{"due tomorrow", today.AddDate(0, 0, 1), 39},
		{"one week left", today.AddDate(0, 0, 7), 39},
		{"eight days left", today.AddDate(0, 0, 8), 38},
		{"full term away", today.AddDate(0, 0, 280), 0},
		{"further than full term", today.AddDate(0, 0, 300), 0},
		{"a week overdue", today.AddDate(0, 0, -7), 41},
		{"mid pregnancy", time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC), 18},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeeksFromEDD(tt.edd, today); got != tt.want {
				t.Errorf("WeeksFromEDD(%s) = %d, want %d", tt.edd.Format(DateLayout), got, tt.want)
			}
		})
	}
}

func TestWeeksFromEDD_PartialDayRoundsUp(t *testing.T) {
	edd := time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC)
	morning := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	if got := WeeksFromEDD(edd, morning); got != 18 {
		t.Errorf("weeks = %d, want 18", got)
	}
}

func TestWeeksFromEDD_MonotonicInDueDate(t *testing.T) {
	today := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	prev := WeeksFromEDD(today.AddDate(0, 0, -30), today)
	for d := -29; d <= 320; d++ {
		w := WeeksFromEDD(today.AddDate(0, 0, d), today)
		if w > prev {
			t.Fatalf("weeks increased from %d to %d at offset %d", prev, w, d)
		}
		if w < 0 {
			t.Fatalf("negative weeks %d at offset %d", w, d)
		}
		prev = w
	}
}

func TestWeeksFromEDD_AdvancesWithToday(t *testing.T) {
	edd := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	prev := WeeksFromEDD(edd, start)
	for d := 1; d <= 200; d++ {
		w := WeeksFromEDD(edd, start.AddDate(0, 0, d))
		if w < prev {
			t.Fatalf("weeks went backwards from %d to %d on day %d", prev, w, d)
		}
		prev = w
	}
}

func TestTrimester(t *testing.T) {
	tests := []struct {
		weeks int
		want  int
	}{
		{0, 1}, {13, 1}, {14, 2}, {27, 2}, {28, 3}, {42, 3},
	}
	for _, tt := range tests {
		if got := Trimester(tt.weeks); got != tt.want {
			t.Errorf("Trimester(%d) = %d, want %d", tt.weeks, got, tt.want)
		}
	}
}

func TestFetalSizeComparison(t *testing.T) {
	tests := []struct {
		weeks int
		want  string
	}{
		{0, "poppy seed"},
		{8, "lime"},
		{18, "mango"},
		{27, "eggplant"},
		{36, "small watermelon"},
		{41, "small watermelon"},
	}
	for _, tt := range tests {
		if got := FetalSizeComparison(tt.weeks); got != tt.want {
			t.Errorf("FetalSizeComparison(%d) = %q, want %q", tt.weeks, got, tt.want)
		}
	}
}
