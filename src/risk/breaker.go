package risk

import "fmt"

// BreakerVerdict is the account circuit breaker's decision for one cycle.
type BreakerVerdict struct {
	Tripped bool
	Reason  string
	Pnl     float64
}

// CheckAccount compares realized account PnL against the engine's quote-
// currency loss and profit limits. Landing exactly on a limit does not trip
// the breaker; the loss must exceed it. A non-positive limit disables that
// side.
func CheckAccount(totalValue, initialBalance, stopLossLimit, takeProfitLimit float64) BreakerVerdict {
	pnl := totalValue - initialBalance

	if stopLossLimit > 0 && pnl < -stopLossLimit {
		return BreakerVerdict{
			Tripped: true,
			Pnl:     pnl,
			Reason:  fmt.Sprintf("account stop loss: pnl %.2f < -%.2f", pnl, stopLossLimit),
		}
	}

	if takeProfitLimit > 0 && pnl > takeProfitLimit {
		return BreakerVerdict{
			Tripped: true,
			Pnl:     pnl,
			Reason:  fmt.Sprintf("account take profit: pnl %.2f > %.2f", pnl, takeProfitLimit),
		}
	}

	return BreakerVerdict{Pnl: pnl}
}
