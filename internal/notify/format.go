package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

const solscanTx = "https://solscan.io/tx/"

// TokenEvaluated renders the new-token message with the filter's decision.
func TokenEvaluated(ev domain.TokenEvent, d domain.Decision) (title, body string) {
	verdict := "Rejected"
	if d.Accept {
		verdict = "Safe to buy"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", orDefault(ev.Name, "Unknown"))
	fmt.Fprintf(&b, "Symbol: %s\n", orDefault(ev.Symbol, "N/A"))
	fmt.Fprintf(&b, "Mint: %s\n", ev.AssetID)
	fmt.Fprintf(&b, "Trader: %s\n", orDefault(ev.TraderPublicKey, "N/A"))
	fmt.Fprintf(&b, "Tx type: %s\n", orDefault(ev.TxType, "N/A"))
	fmt.Fprintf(&b, "Initial buy: %s tokens\n", ev.InitialTradeVolume.StringFixed(2))
	fmt.Fprintf(&b, "Tokens in curve: %s\n", ev.TokensInCurve.StringFixed(2))
	fmt.Fprintf(&b, "SOL in curve: %s\n", ev.LiquidityPoolSize.StringFixed(2))
	fmt.Fprintf(&b, "Market cap: %s SOL\n", ev.MarketCap.StringFixed(2))
	fmt.Fprintf(&b, "Decision: %s\n", verdict)
	fmt.Fprintf(&b, "Reason: %s", d.Reason)
	if ev.URI != "" {
		fmt.Fprintf(&b, "\nMetadata: %s", ev.URI)
	}
	if ev.Signature != "" {
		fmt.Fprintf(&b, "\nTransaction: %s%s", solscanTx, ev.Signature)
	}
	return "New token created on pump.fun", b.String()
}

// PositionOpened renders the open action.
func PositionOpened(p domain.Position) (title, body string) {
	body = fmt.Sprintf("Bought %s (%s)\nMint: %s\nEntry value: %s\nTarget value: %s\nAmount: %s",
		orDefault(p.Name, "Unknown"), orDefault(p.Symbol, "N/A"), p.AssetID,
		p.EntryValue.StringFixed(2), p.TargetValue.StringFixed(2), p.Quantity.String())
	return "Position opened", body
}

// PositionClosed renders the close action with the percentage move that
// triggered it.
func PositionClosed(p domain.Position, changePct decimal.Decimal) (title, body string) {
	exit := "n/a"
	if p.ExitValue != nil {
		exit = p.ExitValue.StringFixed(2)
	}
	body = fmt.Sprintf("Sold %s (%s): %s\nMint: %s\nEntry value: %s\nExit value: %s\nPnL: %s",
		orDefault(p.Name, "Unknown"), orDefault(p.Symbol, "N/A"), CloseReasonText(p.CloseReason, changePct),
		p.AssetID, p.EntryValue.StringFixed(2), exit, p.RealizedPnL().StringFixed(6))
	return "Position closed", body
}

// CloseReasonText describes why a position closed, e.g.
// "profit target reached (52.10%)".
func CloseReasonText(r domain.CloseReason, changePct decimal.Decimal) string {
	pct := changePct.StringFixed(2)
	switch r {
	case domain.CloseReasonProfitTarget:
		return fmt.Sprintf("profit target reached (%s%%)", pct)
	case domain.CloseReasonLossThreshold:
		return fmt.Sprintf("loss threshold reached (%s%%)", pct)
	default:
		return fmt.Sprintf("closed (%s%%)", pct)
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
