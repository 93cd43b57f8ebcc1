package service

// LetterGrade maps a percentage to the fixed grade bands.
func LetterGrade(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A+"
	case percentage >= 80:
		return "A"
	case percentage >= 70:
		return "B"
	case percentage >= 60:
		return "C"
	case percentage >= 50:
		return "D"
	default:
		return "F"
	}
}

// Percentage computes 100*earned/max, guarding against max == 0.
func Percentage(earned, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return 100 * earned / max
}
