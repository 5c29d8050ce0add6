package obstetrics

import (
	"math"
	"time"
)

// FullTermWeeks is the nominal pregnancy length the EDD is counted back from.
const FullTermWeeks = 40

// WeeksFromEDD returns the completed gestational weeks on today for a
// pregnancy due on edd. The result is never negative; there is no upper
// bound, pregnancies past term keep counting until delivery is recorded.
func WeeksFromEDD(edd, today time.Time) int {
	daysRemaining := math.Ceil(edd.Sub(today).Hours() / 24)
	weeks := int(math.Floor(FullTermWeeks - daysRemaining/7))
	if weeks < 0 {
		return 0
	}
	return weeks
}

// Trimester maps gestational weeks to 1, 2 or 3.
func Trimester(weeks int) int {
	switch {
	case weeks < 14:
		return 1
	case weeks < 28:
		return 2
	default:
		return 3
	}
}

// FetalSizeComparison returns the everyday object the baby is roughly the
// size of at the given week, as shown on the patient dashboard.
func FetalSizeComparison(weeks int) string {
	switch {
	case weeks < 8:
		return "poppy seed"
	case weeks < 12:
		return "lime"
	case weeks < 16:
		return "orange"
	case weeks < 20:
		return "mango"
	case weeks < 24:
		return "papaya"
	case weeks < 28:
		return "eggplant"
	case weeks < 32:
		return "pineapple"
	case weeks < 36:
		return "melon"
	default:
		return "small watermelon"
	}
}
