package risk

import "testing"

func TestCheckAccountStopLoss(t *testing.T) {
	// Loss exactly at the limit holds; a hair beyond trips.
	if v := CheckAccount(950, 1000, 50, 0); v.Tripped {
		t.Fatalf("pnl exactly at -limit must not trip: %+v", v)
	}
	if v := CheckAccount(949.999, 1000, 50, 0); !v.Tripped {
		t.Fatal("pnl beyond -limit must trip")
	}
}

func TestCheckAccountTakeProfit(t *testing.T) {
	if v := CheckAccount(1050, 1000, 0, 50); v.Tripped {
		t.Fatalf("pnl exactly at limit must not trip: %+v", v)
	}
	if v := CheckAccount(1050.001, 1000, 0, 50); !v.Tripped {
		t.Fatal("pnl beyond limit must trip")
	}
}

func TestCheckAccountDisabledLimits(t *testing.T) {
	tests := []struct {
		name       string
		totalValue float64
		sl, tp     float64
	}{
		{"zero limits disable both sides", 100, 0, 0},
		{"negative limits disable both sides", 1e9, -1, -1},
		{"deep loss with sl disabled", 10, 0, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if v := CheckAccount(tt.totalValue, 1000, tt.sl, tt.tp); v.Tripped {
				t.Fatalf("disabled limit must never trip: %+v", v)
			}
		})
	}
}

func TestCheckAccountReportsPnl(t *testing.T) {
	v := CheckAccount(900, 1000, 50, 0)
	if !v.Tripped {
		t.Fatal("expected trip")
	}
	if v.Pnl != -100 {
		t.Fatalf("expected pnl -100, got %.2f", v.Pnl)
	}
	if v.Reason == "" {
		t.Fatal("expected a reason on trip")
	}
}
