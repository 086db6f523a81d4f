// Package session resolves an opaque session token to the player it
// belongs to. Authentication itself is out of scope (spec.md §1); this
// package is the read-only collaborator the wager ledger consults.
package session

import "context"

// Store looks up a session token.
type Store interface {
	// Lookup returns the player, tenant, and account currency the token
	// belongs to. ok is false if the token is unknown or expired.
	//
	// Currency is resolved here rather than accepted from the client's
	// place_bet payload: spec.md §9 normalizes currency handling to a
	// single string at the ledger boundary, and the session record is
	// that boundary's only source of account-level data.
	Lookup(ctx context.Context, sessionToken string) (playerID, tenantID, currency string, ok bool)
}
