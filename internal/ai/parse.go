package ai

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	weightPattern  = regexp.MustCompile(`\$([0-9]+(?:\.[0-9]+)?)\$`)
	numberRegex    = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)
	unitRegex      = regexp.MustCompile(`^[ \t]*([a-zA-Z]+)`)
	ErrParseFailed = errors.New("parse_failed")
)

// unit multipliers to kilograms
var unitToKg = map[string]float64{
	"":          1,
	"kg":        1,
	"kgs":       1,
	"kilo":      1,
	"kilos":     1,
	"kilogram":  1,
	"kilograms": 1,
	"g":         0.001,
	"gr":        0.001,
	"gram":      0.001,
	"grams":     0.001,
	"lb":        0.45359237,
	"lbs":       0.45359237,
	"pound":     0.45359237,
	"pounds":    0.45359237,
	"oz":        0.028349523125,
	"ounce":     0.028349523125,
	"ounces":    0.028349523125,
}

// ParseWeightKg extracts a weight in kilograms. The strict $<number>$ envelope is read as
// kilograms; otherwise the longest number in the text is taken together with the unit
// that follows it (e.g. "about 850 g").
func ParseWeightKg(text string) (float64, error) {
	val, unit, err := ParseWeightWithUnit(text)
	if err != nil {
		return 0, err
	}
	mult, ok := unitToKg[strings.ToLower(unit)]
	if !ok {
		// trailing prose such as "1.2 approx" carries no unit
		mult = 1
	}
	return val * mult, nil
}

// ParseWeightWithUnit returns the parsed numeric value and unit (if any).
func ParseWeightWithUnit(text string) (float64, string, error) {
	m := weightPattern.FindStringSubmatch(text)
	if len(m) >= 2 {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, "", fmt.Errorf("%w: %v", ErrParseFailed, err)
		}
		return v, "", nil
	}
	matches := numberRegex.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return 0, "", fmt.Errorf("%w: no weight value found", ErrParseFailed)
	}
	bestIdx := matches[0]
	for _, m := range matches[1:] {
		if (m[1] - m[0]) > (bestIdx[1] - bestIdx[0]) {
			bestIdx = m
		}
	}
	v, err := strconv.ParseFloat(text[bestIdx[0]:bestIdx[1]], 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	unit := ""
	if post := text[bestIdx[1]:]; post != "" {
		if u := unitRegex.FindStringSubmatch(post); len(u) >= 2 {
			unit = strings.TrimSpace(u[1])
		}
	}
	return v, unit, nil
}
