// Package ledger implements the round-scoped wager ledger from spec.md
// §4.6: placeBet and cancelBet, each a wallet call followed by an atomic
// mutation of the round's wager hash.
package ledger

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"plinkoengine/internal/domain"
	"plinkoengine/internal/store"
	"plinkoengine/internal/walletapi"
)

const maxSymbolsPerWager = 20

// Ledger wires the wager store, round state, RTP tracker, and wallet
// gateway together for bet placement and cancellation. It holds no
// mutable state of its own; everything it touches lives in Redis or the
// wallet gateway.
type Ledger struct {
	wagers *store.WagerStore
	rounds *store.RoundStore
	rtp    *store.RTPTracker
	wallet *walletapi.Client
}

// New builds a Ledger from its collaborators.
func New(wagers *store.WagerStore, rounds *store.RoundStore, rtp *store.RTPTracker, wallet *walletapi.Client) *Ledger {
	return &Ledger{wagers: wagers, rounds: rounds, rtp: rtp, wallet: wallet}
}

// PlaceBetRequest is the input to PlaceBet, assembled by the transport
// layer from the authenticated session plus the client's payload.
type PlaceBetRequest struct {
	SessionToken string
	PlayerID     string
	TenantID     string
	Currency     string
	Amount       decimal.Decimal
	Symbols      []string
}

// PlaceBetResult is the reply spec.md §6's place_bet message expects.
type PlaceBetResult struct {
	Status        string
	NewBalance    decimal.Decimal
	RoundID       string
	TransactionID string
}

// PlaceBet validates the wager, debits the wallet, and appends the
// wager to the active round's ledger. It only succeeds while the
// market is in BETTING.
func (l *Ledger) PlaceBet(ctx context.Context, market string, req PlaceBetRequest) (*PlaceBetResult, error) {
	if !req.Amount.IsPositive() {
		return nil, newError(KindInvalidAmount, "amount must be greater than zero")
	}
	if len(req.Symbols) < 1 || len(req.Symbols) > maxSymbolsPerWager {
		return nil, newError(KindInvalidSelection, fmt.Sprintf("symbols must contain between 1 and %d entries", maxSymbolsPerWager))
	}

	state, err := l.rounds.GetState(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("ledger: read round state: %w", err)
	}
	if state == nil || state.Phase != domain.PhaseBetting {
		return nil, newError(KindBettingClosed, "betting is closed for this round")
	}

	transactionID := uuid.NewString()

	resp, err := l.wallet.Bet(ctx, walletapi.BetRequest{
		SessionToken:  req.SessionToken,
		BetAmount:     req.Amount,
		Currency:      req.Currency,
		TransactionID: transactionID,
		PlayerID:      req.PlayerID,
		TenantID:      req.TenantID,
		Metadata: map[string]interface{}{
			"game":     "plinko",
			"roundId":  state.RoundID,
			"symbols":  req.Symbols,
			"tenantId": req.TenantID,
		},
	})
	if err != nil {
		return nil, newError(KindWalletUnavailable, "wallet gateway unavailable")
	}
	if !resp.Succeeded() {
		return nil, newError(KindInsufficientBalance, resp.Data.Message)
	}

	wager := domain.Wager{
		TransactionID: transactionID,
		PlayerID:      req.PlayerID,
		TenantID:      req.TenantID,
		SessionToken:  req.SessionToken,
		Currency:      req.Currency,
		Amount:        req.Amount,
		Symbols:       req.Symbols,
	}
	if err := l.wagers.AppendWager(ctx, market, state.RoundID, wager); err != nil {
		return nil, fmt.Errorf("ledger: append wager: %w", err)
	}

	l.rtp.RecordBet(ctx, market, req.Amount)

	return &PlaceBetResult{
		Status:        "ACCEPTED",
		NewBalance:    resp.Data.NewBalance,
		RoundID:       state.RoundID,
		TransactionID: transactionID,
	}, nil
}

// CancelBetResult is the reply spec.md §6's cancel_bet message expects.
type CancelBetResult struct {
	Status       string
	RefundAmount decimal.Decimal
	NewBalance   decimal.Decimal
}

// CancelBet removes a player's wager from the active round and refunds
// the wallet debit. Only possible while the round is in BETTING.
func (l *Ledger) CancelBet(ctx context.Context, market, playerID, transactionID string) (*CancelBetResult, error) {
	state, err := l.rounds.GetState(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("ledger: read round state: %w", err)
	}
	if state == nil || state.Phase != domain.PhaseBetting {
		return nil, newError(KindBettingClosed, "betting is closed for this round")
	}

	wager, err := l.wagers.RemoveWager(ctx, market, state.RoundID, playerID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("ledger: remove wager: %w", err)
	}
	if wager == nil {
		return nil, newError(KindNotFound, "no such wager")
	}

	resp, err := l.wallet.Credit(ctx, walletapi.CreditRequest{
		SessionToken:  wager.SessionToken,
		WinAmount:     wager.Amount,
		Currency:      wager.Currency,
		TransactionID: uuid.NewString(),
		PlayerID:      wager.PlayerID,
		TenantID:      wager.TenantID,
		Type:          walletapi.CreditTypeRefund,
		Metadata: map[string]interface{}{
			"reason":        "user_cancel",
			"originalBetId": wager.TransactionID,
		},
	})
	if err != nil || !resp.Succeeded() {
		log.Printf("[LEDGER] CRITICAL: refund credit failed for player=%s tx=%s market=%s: %v", playerID, transactionID, market, err)
		return nil, newError(KindCancellationFailed, "bet removed but refund failed, contact support")
	}

	return &CancelBetResult{
		Status:       "CANCELLED",
		RefundAmount: wager.Amount,
		NewBalance:   resp.Data.NewBalance,
	}, nil
}
