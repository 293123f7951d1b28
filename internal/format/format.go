// Package format renders quote values for display.
//
// Prices use currency style with locale grouping: two fractional digits at
// or above one unit, six below it so sub-cent assets keep their precision.
// Percentages always carry an explicit sign. Market-cap style figures are
// abbreviated with T/B/M/K suffixes.
package format

import (
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const DefaultLocale = "en-US"

type Formatter struct {
	printer *message.Printer
	symbol  string
}

// New returns a Formatter for the BCP 47 locale tag. Unparseable tags fall
// back to en-US.
func New(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.AmericanEnglish
	}
	return &Formatter{
		printer: message.NewPrinter(tag),
		symbol:  "$",
	}
}

var std = New(DefaultLocale)

func Price(v float64) string       { return std.Price(v) }
func Percent(v float64) string     { return std.Percent(v) }
func LargeNumber(v float64) string { return std.LargeNumber(v) }
func CompactUSD(v float64) string  { return std.CompactUSD(v) }

// Price formats a USD amount.
func (f *Formatter) Price(v float64) string {
	if v >= 1 {
		return f.symbol + f.printer.Sprintf("%.2f", v)
	}
	return f.symbol + f.printer.Sprintf("%.6f", v)
}

// Percent formats a 24h change, e.g. "+1.23%" or "-0.50%".
func (f *Formatter) Percent(v float64) string {
	if v == 0 {
		v = 0 // drop negative zero
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	if v >= 0 {
		s = "+" + s
	}
	return s + "%"
}

var largeSteps = []struct {
	limit  float64
	suffix string
}{
	{1e12, "T"},
	{1e9, "B"},
	{1e6, "M"},
	{1e3, "K"},
}

// LargeNumber abbreviates v with one decimal place, picking the suffix by
// magnitude so negative values keep their sign. Below one thousand it is
// rendered as a plain grouped number.
func (f *Formatter) LargeNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	abs := math.Abs(v)
	for _, step := range largeSteps {
		if abs >= step.limit {
			return decimal.NewFromFloat(v / step.limit).StringFixed(1) + step.suffix
		}
	}
	return humanize.CommafWithDigits(v, 3)
}

// CompactUSD is LargeNumber with the currency symbol, e.g. "$1.3T".
func (f *Formatter) CompactUSD(v float64) string {
	if v < 0 {
		return "-" + f.symbol + f.LargeNumber(-v)
	}
	return f.symbol + f.LargeNumber(v)
}
