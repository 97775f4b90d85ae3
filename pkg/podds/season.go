package podds

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Seasons are identified by the year they start in, so 2024 is the 2024/2025 season.

// seasonStartMonth is the first month of a new season
const seasonStartMonth = time.July

// ParseSeason accepts "2024", "2024/2025", "2024-2025", "2024/25" or "2024-25"
// and returns the start year.
func ParseSeason(season string) (int, error) {
	ss := strings.TrimSpace(season)
	if ss == "" {
		return 0, fmt.Errorf("must pass a season")
	}
	ss = strings.ReplaceAll(ss, "-", "/")

	first := ss
	second := ""
	if i := strings.IndexByte(ss, '/'); i >= 0 {
		first, second = ss[:i], ss[i+1:]
	}
	if len(first) != 4 {
		return 0, fmt.Errorf("invalid season format: %s", season)
	}
	year, err := strconv.Atoi(first)
	if err != nil {
		return 0, fmt.Errorf("invalid season format: %s", season)
	}

	switch len(second) {
	case 0:
		return year, nil
	case 2:
		if second != fmt.Sprintf("%02d", (year+1)%100) {
			return 0, fmt.Errorf("season %s does not span consecutive years", season)
		}
		return year, nil
	case 4:
		if second != strconv.Itoa(year+1) {
			return 0, fmt.Errorf("season %s does not span consecutive years", season)
		}
		return year, nil
	}
	return 0, fmt.Errorf("invalid season format: %s", season)
}

// SeasonLabel renders a start year as "2024/2025"
func SeasonLabel(season int) string {
	return fmt.Sprintf("%d/%d", season, season+1)
}

// SeasonForDate returns the season a given date falls in
func SeasonForDate(t time.Time) int {
	if t.Month() >= seasonStartMonth {
		return t.Year()
	}
	return t.Year() - 1
}

// CurrentSeason prefers the league's own notion of the current season and
// falls back to the calendar.
func CurrentSeason(league *League, now time.Time) int {
	if league != nil && league.CurrentSeason > 0 {
		return league.CurrentSeason
	}
	return SeasonForDate(now)
}
