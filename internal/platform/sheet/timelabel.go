package sheet

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// timeRule is one recognised shape of a time label. Rules are tried in order
// and the first one whose pattern matches decides the result.
type timeRule struct {
	name    string
	pattern *regexp.Regexp
	convert func(m []string) (hour, minute int)
}

var timeRules = []timeRule{
	{
		// "9:00", "9:00~\n9:30", "14:30 접수"
		name:    "leading-clock",
		pattern: regexp.MustCompile(`^(\d{1,2}):(\d{2})`),
		convert: func(m []string) (int, int) {
			h, _ := strconv.Atoi(m[1])
			mm, _ := strconv.Atoi(m[2])
			return h, mm
		},
	},
	{
		// "오후 01:00", "오전12:00"
		name:    "korean-meridiem",
		pattern: regexp.MustCompile(`(오전|오후)\s*(\d{1,2}):(\d{2})`),
		convert: func(m []string) (int, int) {
			h, _ := strconv.Atoi(m[2])
			mm, _ := strconv.Atoi(m[3])
			switch m[1] {
			case "오후":
				if h < 12 {
					h += 12
				}
			case "오전":
				if h == 12 {
					h = 0
				}
			}
			return h, mm
		},
	},
}

// NormalizeTime turns a free-form time label into a zero-padded "HH:MM"
// string. It reports false when no rule recognises the label or the clock
// value is out of range.
func NormalizeTime(label string) (string, bool) {
	s := strings.TrimSpace(label)
	if s == "" {
		return "", false
	}
	for _, rule := range timeRules {
		m := rule.pattern.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		h, mm := rule.convert(m)
		if h > 23 || mm > 59 {
			return "", false
		}
		return fmt.Sprintf("%02d:%02d", h, mm), true
	}
	return "", false
}
