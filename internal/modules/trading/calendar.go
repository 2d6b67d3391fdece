package trading

import (
	"fmt"
	"time"
)

// Market time zone. A-share sessions and all trading-day math run on
// Asia/Shanghai wall-clock time.
var cst = mustLoadLocation("Asia/Shanghai")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// UTC+8 has no DST; the fixed offset is an exact fallback when
		// the host has no tzdata.
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// MarketLocation returns the exchange time zone.
func MarketLocation() *time.Location {
	return cst
}

// Known market holidays (YYYY-MM-DD), shipped as static data.
var holidays = map[string]bool{
	// 2025
	"2025-01-01": true,
	"2025-01-28": true, "2025-01-29": true, "2025-01-30": true,
	"2025-01-31": true, "2025-02-03": true, "2025-02-04": true,
	"2025-04-04": true, "2025-04-07": true,
	"2025-05-01": true, "2025-05-02": true, "2025-05-05": true,
	"2025-06-02": true,
	"2025-10-01": true, "2025-10-02": true, "2025-10-03": true,
	"2025-10-06": true, "2025-10-07": true, "2025-10-08": true,
	// 2026
	"2026-01-01": true, "2026-01-02": true,
	"2026-02-16": true, "2026-02-17": true, "2026-02-18": true,
	"2026-02-19": true, "2026-02-20": true,
	"2026-04-06": true,
	"2026-05-01": true, "2026-05-04": true, "2026-05-05": true,
	"2026-06-19": true,
	"2026-09-25": true,
	"2026-10-01": true, "2026-10-02": true, "2026-10-05": true,
	"2026-10-06": true, "2026-10-07": true, "2026-10-08": true,
}

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "周一",
	time.Tuesday:   "周二",
	time.Wednesday: "周三",
	time.Thursday:  "周四",
	time.Friday:    "周五",
	time.Saturday:  "周六",
	time.Sunday:    "周日",
}

// IsTradingDay reports whether the given date is an exchange trading day:
// a weekday not on the holiday list.
func IsTradingDay(t time.Time) bool {
	t = t.In(cst)
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !holidays[t.Format("2006-01-02")]
}

// WeekdayName returns the Chinese weekday name (周一..周日).
func WeekdayName(t time.Time) string {
	return weekdayNames[t.In(cst).Weekday()]
}

// NonTradingDayReason describes why the given date is skipped, e.g.
// "非交易日（2026-08-22 周六）".
func NonTradingDayReason(t time.Time) string {
	t = t.In(cst)
	return fmt.Sprintf("非交易日（%s %s）", t.Format("2006-01-02"), WeekdayName(t))
}

// IsTradingTime reports whether the instant falls inside a continuous
// trading session: 09:30-11:30 or 13:00-15:00 on a trading day.
func IsTradingTime(t time.Time) bool {
	t = t.In(cst)
	if !IsTradingDay(t) {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	morning := minutes >= 9*60+30 && minutes <= 11*60+30
	afternoon := minutes >= 13*60 && minutes <= 15*60
	return morning || afternoon
}

// MarketDate returns the wall-clock date string (YYYY-MM-DD) in exchange time.
func MarketDate(t time.Time) string {
	return t.In(cst).Format("2006-01-02")
}
