package fields

import (
	"regexp"
	"strings"
	"time"

	"github.com/sells-group/nfe-extract/internal/normalize"
)

var (
	digitRun  = regexp.MustCompile(`\d+`)
	anyDate   = regexp.MustCompile(`\b(\d{2}/\d{2}/\d{4})\b`)
	numberSep = ".-/,:"
)

func (e *Engine) number(text string) (string, bool) {
	for _, re := range e.rules.Number {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.ReplaceAll(m[1], ".", ""), true
		}
	}
	if e.rules.NumberFallback {
		return bareSixDigits(text)
	}
	return "", false
}

// bareSixDigits returns the first run of exactly six digits that is not part
// of a formatted value such as a date, tax id or amount.
func bareSixDigits(text string) (string, bool) {
	for _, loc := range digitRun.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if end-start != 6 {
			continue
		}
		if start > 0 && strings.IndexByte(numberSep, text[start-1]) >= 0 {
			continue
		}
		if end < len(text) && strings.IndexByte(numberSep, text[end]) >= 0 {
			continue
		}
		return text[start:end], true
	}
	return "", false
}

func (e *Engine) issueDate(text string) (time.Time, bool) {
	for _, re := range e.rules.Dates {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if d, ok := e.plausibleDate(m[1]); ok {
				return d, true
			}
		}
	}
	for _, m := range anyDate.FindAllStringSubmatch(text, -1) {
		if d, ok := e.plausibleDate(m[1]); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// plausibleDate accepts a real calendar date within the configured window
// of years around now.
func (e *Engine) plausibleDate(s string) (time.Time, bool) {
	d, ok := normalize.Date(s)
	if !ok {
		return time.Time{}, false
	}
	year := e.opts.Now().Year()
	if d.Year() < year-e.opts.DateWindowYears || d.Year() > year+e.opts.DateWindowYears {
		return time.Time{}, false
	}
	return d, true
}
