package features

import (
	"strconv"
	"strings"
)

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func amount(s string) string {
	return strings.TrimPrefix(strings.Trim(strings.TrimSpace(s), `"`), "+")
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// decimals counts the digits after the decimal point.
func decimals(s string) int {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// atoi parses a metadata entry, which is compact JSON.
func atoi(s string) int {
	n, _ := strconv.Atoi(strings.Trim(s, `"`))
	return n
}
