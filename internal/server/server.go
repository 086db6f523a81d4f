// Package server is the HTTP/WebSocket front door: Fiber app
// composition and route registration, adapted from the teacher's
// FiberServer to front the round scheduler, wager ledger, and
// transport hub instead of a single in-process game manager.
package server

import (
	"github.com/gofiber/fiber/v2"

	"plinkoengine/internal/ledger"
	"plinkoengine/internal/marketdb"
	"plinkoengine/internal/session"
	"plinkoengine/internal/store"
	"plinkoengine/internal/transport"
)

// FiberServer bundles the collaborators every route needs. It holds no
// market.Loop references directly: the scheduler is reached only
// through the shared store and the hub, the same surface a horizontally
// scaled sibling process would use.
type FiberServer struct {
	*fiber.App

	markets  map[string]bool
	rounds   *store.RoundStore
	ledger   *ledger.Ledger
	sessions session.Store
	hub      *transport.Hub
	registry marketdb.Registry
}

// Deps bundles FiberServer's collaborators.
type Deps struct {
	Markets  []string
	Rounds   *store.RoundStore
	Ledger   *ledger.Ledger
	Sessions session.Store
	Hub      *transport.Hub
	Registry marketdb.Registry
}

// New builds the Fiber app and wires routes.
func New(deps Deps) *FiberServer {
	marketSet := make(map[string]bool, len(deps.Markets))
	for _, m := range deps.Markets {
		marketSet[m] = true
	}

	s := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader: "plinkoengine",
			AppName:      "plinkoengine",
		}),
		markets:  marketSet,
		rounds:   deps.Rounds,
		ledger:   deps.Ledger,
		sessions: deps.Sessions,
		hub:      deps.Hub,
		registry: deps.Registry,
	}

	s.registerRoutes()
	return s
}
