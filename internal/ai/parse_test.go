package ai

import (
	"math"
	"strings"
	"testing"
)

func TestParseWeightKg(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{"envelope", "$2.5$", 2.5, false},
		{"envelope in prose", "estimated weight is $0.8$ kg", 0.8, false},
		{"first envelope wins", "$1$ and $2$", 1, false},
		{"bare number", "1.4", 1.4, false},
		{"grams", "about 850 g", 0.85, false},
		{"pounds", "3 lbs", 1.36077711, false},
		{"unknown unit", "1.2 approx", 1.2, false},
		{"no match", "nothing here", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWeightKg(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-6 {
				t.Fatalf("got=%v want=%v", got, tt.want)
			}
		})
	}
}

func TestParseWeightWithUnit(t *testing.T) {
	v, unit, err := ParseWeightWithUnit("roughly 1 box, 1200 grams total")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if v != 1200 || unit != "grams" {
		t.Fatalf("v=%v unit=%q", v, unit)
	}
}

func TestBuildWeightPrompt(t *testing.T) {
	p := BuildWeightPrompt(WeightQuery{ProductName: "Nintendo Switch OLED", Quantity: 2})
	if want := "Product: Nintendo Switch OLED"; !strings.Contains(p, want) {
		t.Fatalf("prompt missing %q:\n%s", want, p)
	}
	if strings.Contains(p, "Link:") {
		t.Fatalf("prompt should omit empty link:\n%s", p)
	}
}
