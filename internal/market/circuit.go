package market

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"plinkoengine/internal/domain"
	"plinkoengine/internal/transport"
	"plinkoengine/internal/walletapi"
)

// handleUnhealthy implements spec.md §4.8's circuit breaker: on the
// first unhealthy tick for a market not already PAUSED, refund every
// outstanding wager (if the round was still accepting or freezing bets)
// and write the PAUSED state.
func (l *Loop) handleUnhealthy(ctx context.Context) {
	state, err := l.rounds.GetState(ctx, l.market)
	if err != nil {
		log.Printf("[CIRCUIT] %s read state: %v", l.market, err)
		return
	}
	if state != nil && state.Phase == domain.PhasePaused {
		return
	}

	roundID := ""
	if state != nil {
		roundID = state.RoundID
		if state.Phase == domain.PhaseBetting || state.Phase == domain.PhaseAccumulation {
			l.refundRound(ctx, roundID)
		}
	}

	now := time.Now()
	paused := &domain.RoundState{
		Market:     l.market,
		Phase:      domain.PhasePaused,
		RoundID:    roundID,
		ServerTime: now.UnixMilli(),
		EndTime:    now.Add(unhealthyRetry).UnixMilli(),
		Message:    "Market data unstable",
	}
	if err := l.rounds.PutState(ctx, paused); err != nil {
		log.Printf("[CIRCUIT] %s persist PAUSED state: %v", l.market, err)
		return
	}

	l.hub.BroadcastRoom(transport.MarketRoom(l.market), transport.Event{
		Type: "market-status",
		Data: map[string]interface{}{"status": "CLOSED", "reason": "stale market data", "timestamp": now.UnixMilli()},
	})
}

// refundRound credits every outstanding wager of the round back to its
// player (best-effort, logging per failure) and broadcasts the
// ROUND_CANCELLED event, then deletes the wager hash.
func (l *Loop) refundRound(ctx context.Context, roundID string) {
	if roundID == "" {
		return
	}
	wagersByPlayer, err := l.wagers.AllWagers(ctx, l.market, roundID)
	if err != nil {
		log.Printf("[CIRCUIT] %s/%s read wagers for refund: %v", l.market, roundID, err)
		return
	}
	if len(wagersByPlayer) == 0 {
		return
	}

	for playerID, wagers := range wagersByPlayer {
		for _, wager := range wagers {
			resp, err := l.wallet.Credit(ctx, walletapi.CreditRequest{
				SessionToken:  wager.SessionToken,
				WinAmount:     wager.Amount,
				Currency:      wager.Currency,
				TransactionID: uuid.NewString(),
				PlayerID:      wager.PlayerID,
				TenantID:      wager.TenantID,
				Type:          walletapi.CreditTypeRefund,
				Metadata: map[string]interface{}{
					"reason":        "market_outage",
					"originalRound": roundID,
					"originalBetId": wager.TransactionID,
				},
			})
			if err != nil || !resp.Succeeded() {
				log.Printf("[CIRCUIT] CRITICAL: refund failed for player=%s tx=%s: %v", playerID, wager.TransactionID, err)
			}
		}
	}

	l.hub.BroadcastRoom(transport.MarketRoom(l.market), transport.Event{
		Type: "game:error",
		Data: map[string]interface{}{"code": "ROUND_CANCELLED", "message": "Bets refunded"},
	})

	if err := l.wagers.DeleteWagers(ctx, l.market, roundID); err != nil {
		log.Printf("[CIRCUIT] %s/%s delete wagers after refund: %v", l.market, roundID, err)
	}
}
