package repository

import (
	"fmt"
	"net/url"
	"strings"

	"hallbook/internal/models"
)

const (
	calendarPrefix = "hallbook:calendar:"
	allHallsToken  = "_all"
)

// hallToken normalizes a hall name for keys. QueryEscape leaves no glob
// metacharacters, so the token is safe inside SCAN patterns.
func hallToken(hall string) string {
	h := strings.ToLower(strings.TrimSpace(hall))
	if h == "" {
		return allHallsToken
	}
	return url.QueryEscape(h)
}

func calendarKey(key models.CalendarKey) string {
	return fmt.Sprintf("%s%s:%04d-%02d", calendarPrefix, hallToken(key.Hall), key.Year, key.Month)
}

// invalidationPatterns covers the hall's own months and the all-halls months.
func invalidationPatterns(hall string) []string {
	patterns := []string{calendarPrefix + allHallsToken + ":*"}
	if token := hallToken(hall); token != allHallsToken {
		patterns = append(patterns, calendarPrefix+token+":*")
	}
	return patterns
}
