package alerts_test

import (
	"testing"

	"github.com/TerraCast/TC-Backend/internal/alerts"
)

// TestSetRanges_Sorting verifies ranges are stored ascending by lower bound,
// with an open lower bound sorting as 0.
func TestSetRanges_Sorting(t *testing.T) {
	m := &alerts.Metadata{ID: "m1", Field: "temperature"}
	err := m.SetRanges([]alerts.Range{
		{Lower: f64(35), Color: "red"},
		{Upper: f64(-10), Color: "blue"}, // open lower bound, sorts as 0
		{Lower: f64(-20), Color: "purple"},
		{Lower: f64(10), Color: "green"},
	})
	if err != nil {
		t.Fatalf("SetRanges: %v", err)
	}

	got, err := m.RangeList()
	if err != nil {
		t.Fatalf("RangeList: %v", err)
	}
	want := []string{"purple", "blue", "green", "red"}
	for i, color := range want {
		if got[i].Color != color {
			t.Errorf("range %d = %s, want %s", i, got[i].Color, color)
		}
	}
}

// TestRange_Contains verifies open bounds act as infinities during
// evaluation even though they sort as 0.
func TestRange_Contains(t *testing.T) {
	openLower := alerts.Range{Upper: f64(-10)}
	if !openLower.Contains(-1e9) {
		t.Error("open lower bound should contain arbitrarily low values")
	}
	if openLower.Contains(-9.9) {
		t.Error("value above upper bound should not match")
	}

	openUpper := alerts.Range{Lower: f64(35)}
	if !openUpper.Contains(1e9) {
		t.Error("open upper bound should contain arbitrarily high values")
	}
	if !openUpper.Contains(35) {
		t.Error("bounds are inclusive")
	}
	if openUpper.Contains(34.999) {
		t.Error("value below lower bound should not match")
	}

	closed := alerts.Range{Lower: f64(0), Upper: f64(30)}
	for v, want := range map[float64]bool{-0.1: false, 0: true, 15: true, 30: true, 30.1: false} {
		if closed.Contains(v) != want {
			t.Errorf("closed.Contains(%v) = %v, want %v", v, !want, want)
		}
	}
}
