package model

import "math"

// MaxBucketKg is the largest capacity any single trip bucket may declare.
const MaxBucketKg = 200.0

// KgToGrams converts an API weight to the integer grams used for capacity bookkeeping.
func KgToGrams(kg float64) int64 {
	return int64(math.Round(kg * 1000))
}

func GramsToKg(g int64) float64 {
	return float64(g) / 1000
}
