// Package timefix turns loosely written due times into absolute instants.
package timefix

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var ErrUnknown = errors.New("could not resolve time")

// Normalizer resolves text to an instant in the owner's zone. ref anchors
// relative expressions such as "tomorrow".
type Normalizer interface {
	Normalize(text string, loc *time.Location, ref time.Time) (time.Time, bool)
}

// Parser is the default Normalizer. It is safe for concurrent use.
type Parser struct {
	w *when.Parser
}

func New() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{w: w}
}

var replacements = []struct {
	re  *regexp.Regexp
	new string
}{
	{regexp.MustCompile(`\bat around\s+`), "at "},
	{regexp.MustCompile(`\bby\s+`), ""},
	{regexp.MustCompile(`\baround\s+`), ""},
	{regexp.MustCompile(`\babout\s+`), ""},
	{regexp.MustCompile(`\bin the morning\b`), " at 9am"},
	{regexp.MustCompile(`\bin the evening\b`), " at 6pm"},
	{regexp.MustCompile(`\bin the afternoon\b`), " at 3pm"},
	{regexp.MustCompile(`\bat night\b`), " at 9pm"},
	{regexp.MustCompile(`\btonite\b`), "tonight"},
}

var (
	partOfDay = regexp.MustCompile(`(today|tomorrow)\s+(morning|evening|afternoon)\s+(?:by|at)\s+`)
	relative  = regexp.MustCompile(`(?i)(\d+|a)\s*(day|week|month|year)s?\s*(before|after)\s*(.+)`)
	spaces    = regexp.MustCompile(`\s+`)
)

func clean(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	t = partOfDay.ReplaceAllString(t, "$1 at ")
	for _, r := range replacements {
		t = r.re.ReplaceAllString(t, r.new)
	}
	return strings.TrimSpace(spaces.ReplaceAllString(t, " "))
}

func (p *Parser) Normalize(text string, loc *time.Location, ref time.Time) (time.Time, bool) {
	t, err := p.Parse(text, loc, ref)
	return t, err == nil
}

// Parse resolves text. A well-formed RFC 3339 value is returned unchanged.
func (p *Parser) Parse(text string, loc *time.Location, ref time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, ErrUnknown
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	ref = ref.In(loc)

	norm := clean(text)
	if m := relative.FindStringSubmatch(norm); m != nil {
		base, err := p.absolute(m[4], loc, ref)
		if err != nil {
			return time.Time{}, err
		}
		return shift(base, m[1], m[2], m[3]), nil
	}
	return p.absolute(norm, loc, ref)
}

func (p *Parser) absolute(text string, loc *time.Location, ref time.Time) (time.Time, error) {
	if t, err := dateparse.ParseIn(text, loc); err == nil {
		return t, nil
	}
	r, err := p.w.Parse(text, ref)
	if err != nil || r == nil {
		return time.Time{}, ErrUnknown
	}
	return r.Time.In(loc), nil
}

func shift(base time.Time, qty, unit, direction string) time.Time {
	n := 1
	if qty != "a" {
		n, _ = strconv.Atoi(qty)
	}
	var d time.Duration
	switch unit {
	case "day":
		d = 24 * time.Hour
	case "week":
		d = 7 * 24 * time.Hour
	case "month":
		d = 30 * 24 * time.Hour
	default:
		d = 365 * 24 * time.Hour
	}
	d *= time.Duration(n)
	if direction == "before" {
		return base.Add(-d)
	}
	return base.Add(d)
}
