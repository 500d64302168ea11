package pricing

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var usd = message.NewPrinter(language.AmericanEnglish)

// FormatCents renders an amount as US dollars, e.g. $1,234.50.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + "$" + usd.Sprintf("%d", cents/100) + fmt.Sprintf(".%02d", cents%100)
}
