// Package filename infers a {year}_{month} period from free-form upload names.
package filename

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

var (
	numericPattern      = regexp.MustCompile(`(\d{4})[-_]?(\d{2})`)
	transactionPattern  = regexp.MustCompile(`transactions?\s+(\w+)\s+(\d{4})`)
	leadingMonthPattern = regexp.MustCompile(`^(\w+)\s+(\d{4})`)
)

// months maps every accepted month spelling to its three-letter token.
var months = map[string]string{
	"january": "jan", "jan": "jan",
	"february": "feb", "feb": "feb",
	"march": "mar", "mar": "mar",
	"april": "apr", "apr": "apr",
	"may": "may",
	"june": "jun", "jun": "jun",
	"july": "jul", "jul": "jul",
	"august": "aug", "aug": "aug",
	"september": "sep", "sept": "sep", "sep": "sep",
	"october": "oct", "oct": "oct",
	"november": "nov", "nov": "nov",
	"december": "dec", "dec": "dec",
}

// MonthToken returns the three-letter token for a month name or abbreviation.
func MonthToken(name string) (string, bool) {
	tok, ok := months[strings.ToLower(name)]
	return tok, ok
}

// Normalizer resolves periods from file names. Now supplies the fallback date.
type Normalizer struct {
	Now func() time.Time
}

// NewNormalizer creates a normalizer that falls back to the wall clock.
func NewNormalizer() *Normalizer {
	return &Normalizer{Now: time.Now}
}

// Normalize resolves the period of a file name using the wall clock for fallback.
func Normalize(name string) domain.Period {
	return NewNormalizer().Normalize(name)
}

// Normalize never fails. Rules are tried in order: a numeric year/month pair,
// "transaction[s] <month> <year>", then "<month> <year>" at the start of the
// name. When none applies, or the first matching rule names an unknown month,
// the current year and full month name are returned with Source set to
// PeriodFallback.
func (n *Normalizer) Normalize(name string) domain.Period {
	base := strings.ToLower(filepath.Base(name))

	if m := numericPattern.FindStringSubmatch(base); m != nil {
		return domain.Period{Year: m[1], Month: m[2], Source: domain.PeriodNumeric}
	}

	matched := ""
	for _, rule := range []struct {
		re     *regexp.Regexp
		source domain.PeriodSource
	}{
		{transactionPattern, domain.PeriodTransaction},
		{leadingMonthPattern, domain.PeriodLeadingMonth},
	} {
		m := rule.re.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		// The first matching rule decides; an unknown month is not retried
		// against later rules.
		if tok, ok := months[m[1]]; ok {
			return domain.Period{Year: m[2], Month: tok, Source: rule.source}
		}
		matched = m[1]
		break
	}

	p := n.fallback()
	if matched != "" {
		slog.Warn("unknown month in file name, using current date",
			"file", name,
			"month", matched,
			"period", p.Token(),
		)
	} else {
		slog.Warn("no date pattern in file name, using current date",
			"file", name,
			"period", p.Token(),
		)
	}
	return p
}

func (n *Normalizer) fallback() domain.Period {
	now := time.Now
	if n != nil && n.Now != nil {
		now = n.Now
	}
	t := now()
	return domain.Period{
		Year:   t.Format("2006"),
		Month:  strings.ToLower(t.Month().String()),
		Source: domain.PeriodFallback,
	}
}

// TargetName builds the canonical stored name "transaction_{year}_{month}{ext}".
func TargetName(p domain.Period, ext string) string {
	return "transaction_" + p.Token() + strings.ToLower(ext)
}
