package risk

import "testing"

func TestStopLossThreshold(t *testing.T) {
	tests := []struct {
		leverage int
		want     float64
	}{
		{20, -3.0},
		{12, -3.0},
		{11, -4.0},
		{8, -4.0},
		{7, -5.0},
		{1, -5.0},
	}

	for _, tt := range tests {
		if got := StopLossThreshold(tt.leverage, nil); got != tt.want {
			t.Fatalf("leverage %d: expected %.1f, got %.1f", tt.leverage, tt.want, got)
		}
	}
}

func TestTrailingThreshold(t *testing.T) {
	tests := []struct {
		peak     float64
		leverage int
		want     float64
	}{
		{30, 10, 15.0},
		{25, 10, 15.0},
		{24.99, 10, 8.0},
		{15, 10, 8.0},
		{14.99, 10, 3.0},
		{8, 10, 3.0},
		{7.99, 10, -4.0}, // below first rung, falls back to stop loss
		{0, 12, -3.0},
	}

	for _, tt := range tests {
		if got := TrailingThreshold(tt.peak, tt.leverage, nil); got != tt.want {
			t.Fatalf("peak %.2f lev %d: expected %.1f, got %.1f", tt.peak, tt.leverage, tt.want, got)
		}
	}
}

func TestStopLossThresholdCustomTiers(t *testing.T) {
	tiers := []StopLossTier{{MinLeverage: 10, Threshold: -1.5}, {MinLeverage: 0, Threshold: -2.0}}

	if got := StopLossThreshold(15, tiers); got != -1.5 {
		t.Fatalf("expected custom tier -1.5, got %.1f", got)
	}
	if got := StopLossThreshold(5, tiers); got != -2.0 {
		t.Fatalf("expected custom tier -2.0, got %.1f", got)
	}
	// Empty slice falls back to the built-in table.
	if got := StopLossThreshold(5, []StopLossTier{}); got != -5.0 {
		t.Fatalf("expected default -5.0, got %.1f", got)
	}
}

func TestEvaluateCustomStopLossTiers(t *testing.T) {
	tiers := []StopLossTier{{MinLeverage: 0, Threshold: -2.0}}
	s := Snapshot{Leverage: 5, PnlPercent: -2.5, PeakPnlPercent: 0, StopLossTiers: tiers}

	if v := Evaluate(s, 1); !v.Close {
		t.Fatalf("-2.5%% must close under a -2 tier, got %+v", v)
	}

	// The same position holds under the built-in table.
	s.StopLossTiers = nil
	if v := Evaluate(s, 1); v.Close {
		t.Fatalf("-2.5%% must hold under default tiers, got %+v", v)
	}
}

func TestEvaluateHoldingTime(t *testing.T) {
	s := Snapshot{Symbol: "BTC_USDT", Leverage: 5, PnlPercent: 10, PeakPnlPercent: 10}

	if v := Evaluate(s, 35.99); v.Close {
		t.Fatalf("35.99h should not force a close: %+v", v)
	}
	if v := Evaluate(s, 36.0); !v.Close {
		t.Fatal("36.0h must force a close")
	}
	if v := Evaluate(s, 200); !v.Close {
		t.Fatal("well past the ceiling must force a close")
	}
}

func TestEvaluateStopLossTiers(t *testing.T) {
	tests := []struct {
		name      string
		leverage  int
		pnl       float64
		wantClose bool
	}{
		{"lev 12 at exactly -3", 12, -3.0, true},
		{"lev 12 just above -3", 12, -2.99, false},
		{"lev 8 at exactly -4", 8, -4.0, true},
		{"lev 8 just above -4", 8, -3.99, false},
		{"lev 5 at exactly -5", 5, -5.0, true},
		{"lev 5 just above -5", 5, -4.99, false},
		{"lev 5 deep loss", 5, -40.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Snapshot{Leverage: tt.leverage, PnlPercent: tt.pnl, PeakPnlPercent: tt.pnl}
			if v := Evaluate(s, 1); v.Close != tt.wantClose {
				t.Fatalf("pnl %.2f lev %d: expected close=%v, got %+v", tt.pnl, tt.leverage, tt.wantClose, v)
			}
		})
	}
}

// A 12x position that moved 0.25% against entry is a -3% leveraged return and
// must hit the tightest stop tier.
func TestEvaluateStopLossFromPrices(t *testing.T) {
	entry, current := 100.0, 99.75
	leverage := 12
	pnl := (current - entry) / entry * 100 * float64(leverage)

	v := Evaluate(Snapshot{Leverage: leverage, PnlPercent: pnl, PeakPnlPercent: 0}, 1)
	if !v.Close {
		t.Fatalf("expected stop loss close at pnl %.4f, got %+v", pnl, v)
	}
}

func TestEvaluateTrailingStop(t *testing.T) {
	tests := []struct {
		name      string
		pnl       float64
		peak      float64
		wantClose bool
	}{
		{"peak 30 pnl 14 below locked 15", 14, 30, true},
		{"peak 30 pnl 22 above floor holds", 22, 30, false},
		{"peak 16 pnl 7 below locked 8", 7, 16, true},
		{"peak 10 pnl 2 below locked 3", 2, 10, true},
		{"peak 10 pnl 8 above locked 3", 8, 10, false},
		{"peak below first rung never trails", -2, 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Snapshot{Leverage: 5, PnlPercent: tt.pnl, PeakPnlPercent: tt.peak}
			v := Evaluate(s, 1)
			if v.Close != tt.wantClose {
				t.Fatalf("pnl %.2f peak %.2f: expected close=%v, got %+v", tt.pnl, tt.peak, tt.wantClose, v)
			}
		})
	}
}

func TestEvaluatePeakDrawdown(t *testing.T) {
	// Peak 20, now 13: gave back 35% of the peak.
	v := Evaluate(Snapshot{Leverage: 5, PnlPercent: 13, PeakPnlPercent: 20}, 1)
	if !v.Close {
		t.Fatalf("35%% give-back off peak 20 must close, got %+v", v)
	}

	// Peak 20, now 14.5: 27.5% give-back, still inside tolerance. Trailing
	// floor at peak 20 is 8, so no trailing exit either.
	v = Evaluate(Snapshot{Leverage: 5, PnlPercent: 14.5, PeakPnlPercent: 20}, 1)
	if v.Close {
		t.Fatalf("27.5%% give-back should hold, got %+v", v)
	}

	// Peak exactly at the arm threshold never arms the drawdown rule.
	v = Evaluate(Snapshot{Leverage: 5, PnlPercent: 0.5, PeakPnlPercent: 5}, 1)
	if v.Close {
		t.Fatalf("peak at arm threshold must not trigger drawdown, got %+v", v)
	}

	// Peak zero or negative never divides.
	v = Evaluate(Snapshot{Leverage: 5, PnlPercent: -1, PeakPnlPercent: 0}, 1)
	if v.Close {
		t.Fatalf("non-positive peak must not trigger drawdown, got %+v", v)
	}
}

func TestEvaluatePriorityOrder(t *testing.T) {
	// Expired holding time dominates an otherwise healthy position.
	v := Evaluate(Snapshot{Leverage: 5, PnlPercent: 50, PeakPnlPercent: 50}, 40)
	if !v.Close {
		t.Fatal("expected close")
	}
	if v.Reason == "" || v.Reason[:3] != "max" {
		t.Fatalf("holding time must win over profit rules, got reason %q", v.Reason)
	}

	// A position both under stop loss and under the trailing floor reports the
	// stop loss.
	v = Evaluate(Snapshot{Leverage: 12, PnlPercent: -10, PeakPnlPercent: 30}, 1)
	if !v.Close {
		t.Fatal("expected close")
	}
	if v.Reason[:7] != "dynamic" {
		t.Fatalf("stop loss must win over trailing, got reason %q", v.Reason)
	}
}
