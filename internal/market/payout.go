package market

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"plinkoengine/internal/domain"
	"plinkoengine/internal/transport"
	"plinkoengine/internal/walletapi"
)

// betBreakdown is one wager's contribution to a player's aggregated
// payout event, per spec.md §4.7.
type betBreakdown struct {
	BetID      string          `json:"betId"`
	Symbols    []string        `json:"symbols"`
	Wager      decimal.Decimal `json:"wager"`
	Payout     decimal.Decimal `json:"payout"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

// payoutEvent is the aggregated game:payout payload spec.md §6 defines.
type payoutEvent struct {
	RoundID     string          `json:"roundId"`
	Currency    string          `json:"currency"`
	TotalWager  decimal.Decimal `json:"totalWager"`
	TotalPayout decimal.Decimal `json:"totalPayout"`
	NetProfit   decimal.Decimal `json:"netProfit"`
	Bets        []betBreakdown  `json:"bets"`
}

// runPayout implements spec.md §4.7: read the round's results and
// wagers, credit every winning bet with bounded parallelism, emit one
// aggregated payout event per player, then clean up the round's keys.
//
// This implementation calls recordWin once per round with the sum of
// every player's payout, resolving spec.md §9's open aggregation
// question (see DESIGN.md).
func (l *Loop) runPayout(ctx context.Context, roundID string) {
	results, err := l.rounds.GetResults(ctx, l.market, roundID)
	if err != nil {
		log.Printf("[PAYOUT] %s/%s read results: %v", l.market, roundID, err)
		return
	}
	wagersByPlayer, err := l.wagers.AllWagers(ctx, l.market, roundID)
	if err != nil {
		log.Printf("[PAYOUT] %s/%s read wagers: %v", l.market, roundID, err)
		return
	}
	if len(results) == 0 || len(wagersByPlayer) == 0 {
		l.cleanupRound(ctx, roundID)
		return
	}

	multiplierBySymbol := make(map[string]float64, len(results))
	for _, r := range results {
		multiplierBySymbol[r.Symbol] = r.Multiplier
	}

	var (
		mu               sync.Mutex
		totalRoundPayout = decimal.Zero
		wg               sync.WaitGroup
		sem              = make(chan struct{}, payoutConcurrency)
	)

	for playerID, wagers := range wagersByPlayer {
		playerID, wagers := playerID, wagers
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			payout := l.payoutPlayer(ctx, roundID, playerID, wagers, multiplierBySymbol)

			mu.Lock()
			totalRoundPayout = totalRoundPayout.Add(payout)
			mu.Unlock()
		}()
	}
	wg.Wait()

	l.rtpTrack.RecordWin(ctx, l.market, totalRoundPayout)
	l.cleanupRound(ctx, roundID)
}

// payoutPlayer computes and credits one player's wagers for the round,
// then emits their aggregated payout event. It returns the player's
// total payout so the caller can fold it into the round-wide RTP total.
func (l *Loop) payoutPlayer(ctx context.Context, roundID, playerID string, wagers []domain.Wager, multiplierBySymbol map[string]float64) decimal.Decimal {
	var totalWager, totalPayout decimal.Decimal
	bets := make([]betBreakdown, 0, len(wagers))
	currency := ""

	for _, wager := range wagers {
		currency = wager.Currency
		betPerSymbol := wager.Amount.Div(decimal.NewFromInt(int64(len(wager.Symbols))))

		betWin := decimal.Zero
		for _, symbol := range wager.Symbols {
			betWin = betWin.Add(betPerSymbol.Mul(decimal.NewFromFloat(multiplierBySymbol[symbol])))
		}

		totalWager = totalWager.Add(wager.Amount)
		totalPayout = totalPayout.Add(betWin)

		multiplier := decimal.Zero
		if wager.Amount.IsPositive() {
			multiplier = betWin.Div(wager.Amount)
		}
		bets = append(bets, betBreakdown{
			BetID:      wager.TransactionID,
			Symbols:    wager.Symbols,
			Wager:      wager.Amount,
			Payout:     betWin,
			Multiplier: multiplier,
		})

		if betWin.IsPositive() {
			resp, err := l.wallet.Credit(ctx, walletapi.CreditRequest{
				SessionToken:  wager.SessionToken,
				WinAmount:     betWin,
				Currency:      wager.Currency,
				TransactionID: uuid.NewString(),
				PlayerID:      wager.PlayerID,
				TenantID:      wager.TenantID,
				Type:          walletapi.CreditTypeWin,
				Metadata: map[string]interface{}{
					"game":      "plinko",
					"wagerTxId": wager.TransactionID,
				},
			})
			if err != nil || !resp.Succeeded() {
				log.Printf("[PAYOUT] CRITICAL: credit failed for player=%s tx=%s amount=%s: %v", playerID, wager.TransactionID, betWin, err)
			}
		}
	}

	l.hub.EmitToRoom(transport.BalanceRoom(playerID), transport.Event{
		Type: "game:payout",
		Data: payoutEvent{
			RoundID:     roundID,
			Currency:    currency,
			TotalWager:  totalWager,
			TotalPayout: totalPayout,
			NetProfit:   totalPayout.Sub(totalWager),
			Bets:        bets,
		},
	})

	return totalPayout
}

// cleanupRound deletes the round's wager hash and results key, the
// terminal step of both the payout pipeline and a no-op payout.
func (l *Loop) cleanupRound(ctx context.Context, roundID string) {
	if err := l.wagers.DeleteWagers(ctx, l.market, roundID); err != nil {
		log.Printf("[PAYOUT] %s/%s delete wagers: %v", l.market, roundID, err)
	}
	if err := l.rounds.DeleteResults(ctx, l.market, roundID); err != nil {
		log.Printf("[PAYOUT] %s/%s delete results: %v", l.market, roundID, err)
	}
}
