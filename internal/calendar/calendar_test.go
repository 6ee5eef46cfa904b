package calendar

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestIsTradingDay(t *testing.T) {
	cal := NewXSHG()
	cases := []struct {
		day  string
		want bool
	}{
		{"2024-01-02", true},
		{"2024-01-01", false}, // new year
		{"2024-01-06", false}, // saturday
		{"2024-10-07", false},
		{"2024-10-08", true},
		{"2025-01-29", false},
	}
	for _, c := range cases {
		if got := cal.IsTradingDay(date(c.day)); got != c.want {
			t.Errorf("IsTradingDay(%s) = %v, want %v", c.day, got, c.want)
		}
	}
}

func TestExtraHolidays(t *testing.T) {
	cal := NewXSHG("2024-01-02")
	if cal.IsTradingDay(date("2024-01-02")) {
		t.Fatal("extra holiday should not be a trading day")
	}
}

func TestPreviousTradingDay(t *testing.T) {
	cal := NewXSHG()
	// Monday after the national day week: previous trading day is 2024-09-30.
	got := PreviousTradingDay(cal, date("2024-10-08"))
	if !got.Equal(date("2024-09-30")) {
		t.Fatalf("got %s", got.Format("2006-01-02"))
	}
}

func TestLastTradingDay(t *testing.T) {
	cal := NewXSHG()
	if got := LastTradingDay(cal, date("2024-01-05")); !got.Equal(date("2024-01-05")) {
		t.Fatalf("trading day kept: got %s", got.Format("2006-01-02"))
	}
	if got := LastTradingDay(cal, date("2024-01-07")); !got.Equal(date("2024-01-05")) {
		t.Fatalf("sunday: got %s", got.Format("2006-01-02"))
	}
}

func TestNextClose(t *testing.T) {
	cal := NewXSHG()
	// Friday 16:00 CST → next close is Monday 15:00.
	now := time.Date(2024, 1, 5, 16, 0, 0, 0, CST)
	got := NextClose(cal, now)
	want := time.Date(2024, 1, 8, 15, 0, 0, 0, CST)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestLoadHolidays(t *testing.T) {
	p := filepath.Join(t.TempDir(), "holidays.yaml")
	if err := os.WriteFile(p, []byte("holidays:\n  - \"2027-01-01\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadHolidays(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "2027-01-01" {
		t.Fatalf("got %v", got)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(bad, []byte("holidays:\n  - \"jan 1\"\n"), 0644)
	if _, err := LoadHolidays(bad); err == nil {
		t.Fatal("expected error for malformed date")
	}
}
