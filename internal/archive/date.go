package archive

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	monthNamePattern = regexp.MustCompile(`(?i)(?:^|[^a-z])((jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4}))`)
	isoPattern       = regexp.MustCompile(`(?:^|\D)(\d{4})[-_](\d{2})[-_](\d{2})(?:\D|$)`)
	usPattern        = regexp.MustCompile(`(?:^|\D)(\d{1,2})[-_](\d{1,2})[-_](\d{4})(?:\D|$)`)
	dottedPattern    = regexp.MustCompile(`(?:^|\D)(\d{1,2}\.\d{1,2}\.(?:\d{4}|\d{2}))(?:\D|$)`)
	compactPattern   = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{6})(?:\D|$)`)
)

// ParseDate finds a meeting date embedded in s. Shapes are tried in the order
// "January 8, 2024", "2024-01-08", "01-08-2024" (or "01_08_2024"), "01.08.24"
// and "20240108". The result is midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, candidate := range candidates(s) {
		t, err := dateparse.ParseIn(candidate, time.UTC)
		if err != nil {
			continue
		}
		if t.Year() < 1900 || t.Year() > 2100 {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// candidates normalizes every match into a layout dateparse reads unambiguously.
func candidates(s string) []string {
	var out []string
	for _, m := range monthNamePattern.FindAllStringSubmatch(s, -1) {
		abbr := strings.ToLower(m[2][:3])
		mon := strings.ToUpper(abbr[:1]) + abbr[1:]
		out = append(out, fmt.Sprintf("%s %s, %s", mon, m[3], m[4]))
	}
	for _, m := range isoPattern.FindAllStringSubmatch(s, -1) {
		out = append(out, fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]))
	}
	for _, m := range usPattern.FindAllStringSubmatch(s, -1) {
		out = append(out, fmt.Sprintf("%s/%s/%s", m[1], m[2], m[3]))
	}
	for _, m := range dottedPattern.FindAllStringSubmatch(s, -1) {
		out = append(out, strings.ReplaceAll(m[1], ".", "/"))
	}
	for _, m := range compactPattern.FindAllStringSubmatch(s, -1) {
		out = append(out, fmt.Sprintf("%s-%s-%s", m[1][:4], m[1][4:6], m[1][6:]))
	}
	return out
}
