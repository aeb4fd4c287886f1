package broker

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestTrailingStopRatchetsUpward(t *testing.T) {
	var fired []decimal.Decimal
	ts := NewTrailingStop(d("5"), d("100"), func(p decimal.Decimal) {
		fired = append(fired, p)
	})

	// Rising prices pull the trailing point up behind them.
	ts.UpdatePrice(d("104"))
	ts.UpdatePrice(d("110"))
	if len(fired) != 0 {
		t.Fatalf("fired on rising prices: %v", fired)
	}

	// A dip within the trail does not fire and does not lower the point.
	ts.UpdatePrice(d("107"))
	if len(fired) != 0 {
		t.Fatalf("fired inside the trail: %v", fired)
	}

	// Falling to peak minus trail fires, with the crossing price.
	ts.UpdatePrice(d("105"))
	if len(fired) != 1 {
		t.Fatalf("fired %d times, want 1", len(fired))
	}
	if !fired[0].Equal(d("105")) {
		t.Errorf("fired at %s, want 105", fired[0])
	}
}

func TestTrailingStopFiresAtMostOnce(t *testing.T) {
	count := 0
	ts := NewTrailingStop(d("5"), d("100"), func(decimal.Decimal) { count++ })

	ts.UpdatePrice(d("95"))
	ts.UpdatePrice(d("90"))
	ts.UpdatePrice(d("120"))
	ts.UpdatePrice(d("80"))

	if count != 1 {
		t.Errorf("fired %d times, want exactly 1", count)
	}
	if ts.Live() {
		t.Error("stop should be disarmed after firing")
	}
}

func TestTrailingStopUpdateTrailTightens(t *testing.T) {
	count := 0
	ts := NewTrailingStop(d("10"), d("100"), func(decimal.Decimal) { count++ })

	ts.UpdatePrice(d("100"))
	if count != 0 {
		t.Fatal("fired before tightening")
	}

	// Rebasing on the last price keeps a positive trail armed.
	ts.UpdateTrail(d("5"))
	if count != 0 {
		t.Fatalf("fired with price above the rebased point")
	}

	ts.UpdatePrice(d("95"))
	if count != 1 {
		t.Errorf("fired %d times after tightening, want 1", count)
	}
}

func TestTrailingStopUpdateTrailZeroFiresImmediately(t *testing.T) {
	count := 0
	ts := NewTrailingStop(d("10"), d("100"), func(decimal.Decimal) { count++ })

	ts.UpdatePrice(d("100"))
	ts.UpdateTrail(d("0"))

	if count != 1 {
		t.Errorf("fired %d times, want 1: a zero trail puts the point at the last price", count)
	}
}

func TestTrailingStopDisarm(t *testing.T) {
	count := 0
	ts := NewTrailingStop(d("5"), d("100"), func(decimal.Decimal) { count++ })

	ts.disarm()
	ts.UpdatePrice(d("10"))
	ts.UpdateTrail(d("1"))

	if count != 0 {
		t.Errorf("fired %d times after disarm, want 0", count)
	}
}
