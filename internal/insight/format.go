package insight

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// amountPrinter renders money amounts with locale-aware digit grouping so
// large totals read naturally inside insight messages ("$1,250.00").
var amountPrinter = message.NewPrinter(language.English)

// formatAmount renders integer cents as a dollar string.
func formatAmount(cents int64) string {
	return amountPrinter.Sprintf("$%.2f", float64(cents)/100)
}

// formatPercent renders a 0..1 ratio as a whole percentage ("23%").
func formatPercent(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}

// ordinal returns "1st", "2nd", "3rd", "4th", … including the teens
// exceptions (11th, 12th, 13th).
func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
