package server

import (
	"encoding/json"
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/shopspring/decimal"

	"plinkoengine/internal/ledger"
	"plinkoengine/internal/transport"
)

// Connection-time rejection codes from spec.md §7. These precede any
// ledger.Kind error: they reject the handshake itself, before a client
// object exists.
const (
	codeAuthRequired = "AuthRequired"
	codeInvalidSess  = "InvalidSession"
	codeMarketClosed = "MarketClosed"
)

func (s *FiberServer) registerRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)
	s.App.Get("/api/v1/markets/:market/state", s.getMarketStateHandler)

	s.App.Use("/ws/:market", s.wsAuthGate)
	s.App.Get("/ws/:market", websocket.New(s.handleConnection))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"markets": fiber.Map{},
	}
	if s.registry != nil {
		health["registry"] = s.registry.Health(c.Context())
	}
	for market := range s.markets {
		health["markets"].(fiber.Map)[market] = fiber.Map{
			"connectedClients": s.hub.RoomSize(transport.MarketRoom(market)),
		}
	}
	return c.JSON(health)
}

// getMarketStateHandler returns the market's current authoritative
// round-state blob, for clients reconnecting without a live socket.
func (s *FiberServer) getMarketStateHandler(c *fiber.Ctx) error {
	market := c.Params("market")
	if !s.markets[market] {
		return c.Status(404).JSON(fiber.Map{"error": codeMarketClosed})
	}

	state, err := s.rounds.GetState(c.Context(), market)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to read round state"})
	}
	if state == nil {
		return c.Status(404).JSON(fiber.Map{"error": "no active round"})
	}
	return c.JSON(state)
}

// wsAuthGate performs spec.md §7's connection-time rejections before
// the upgrade completes: unknown market, missing session token, or a
// session the store does not recognize.
func (s *FiberServer) wsAuthGate(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	market := c.Params("market")
	if !s.markets[market] {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": codeMarketClosed})
	}

	token := c.Query("session_token")
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": codeAuthRequired})
	}

	playerID, tenantID, currency, ok := s.sessions.Lookup(c.Context(), token)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": codeInvalidSess})
	}

	c.Locals("market", market)
	c.Locals("sessionToken", token)
	c.Locals("playerID", playerID)
	c.Locals("tenantID", tenantID)
	c.Locals("currency", currency)
	return c.Next()
}

// clientMessage is the envelope every place_bet/cancel_bet/ping message
// from the client arrives in, per spec.md §6.
type clientMessage struct {
	Type          string   `json:"type"`
	Amount        float64  `json:"amount"`
	Stocks        []string `json:"stocks"`
	TransactionID string   `json:"transactionId"`
}

// handleConnection is the per-socket read loop: join the market and
// balance rooms, push the current state, then dispatch place_bet,
// cancel_bet, and ping messages until the connection closes.
func (s *FiberServer) handleConnection(conn *websocket.Conn) {
	market, _ := conn.Locals("market").(string)
	playerID, _ := conn.Locals("playerID").(string)
	tenantID, _ := conn.Locals("tenantID").(string)
	currency, _ := conn.Locals("currency").(string)
	sessionToken, _ := conn.Locals("sessionToken").(string)

	client := transport.NewClient(conn, playerID)
	s.hub.JoinRoom(transport.MarketRoom(market), client)
	s.hub.JoinRoom(transport.BalanceRoom(playerID), client)
	defer s.hub.Leave(client)

	log.Printf("[WS] %s connected to %s", playerID, market)

	if state, err := s.rounds.GetState(conn.Context(), market); err == nil && state != nil {
		_ = client.Send(transport.Event{Type: "game:state", Data: state})
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] %s disconnected from %s: %v", playerID, market, err)
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "place_bet":
			s.handlePlaceBet(conn, client, market, playerID, tenantID, currency, sessionToken, msg)
		case "cancel_bet":
			s.handleCancelBet(conn, client, market, playerID, msg)
		case "ping":
			_ = client.Send(transport.Event{Type: "pong"})
		}
	}
}

func (s *FiberServer) handlePlaceBet(conn *websocket.Conn, client *transport.Client, market, playerID, tenantID, currency, sessionToken string, msg clientMessage) {
	result, err := s.ledger.PlaceBet(conn.Context(), market, ledger.PlaceBetRequest{
		SessionToken: sessionToken,
		PlayerID:     playerID,
		TenantID:     tenantID,
		Currency:     currency,
		Amount:       decimal.NewFromFloat(msg.Amount),
		Symbols:      msg.Stocks,
	})
	if err != nil {
		_ = client.Send(transport.Event{Type: "bet_error", Data: betError(err)})
		return
	}
	_ = client.Send(transport.Event{Type: "place_bet", Data: fiber.Map{
		"status":        result.Status,
		"newBalance":    result.NewBalance,
		"roundId":       result.RoundID,
		"transactionId": result.TransactionID,
	}})
}

func (s *FiberServer) handleCancelBet(conn *websocket.Conn, client *transport.Client, market, playerID string, msg clientMessage) {
	result, err := s.ledger.CancelBet(conn.Context(), market, playerID, msg.TransactionID)
	if err != nil {
		_ = client.Send(transport.Event{Type: "bet_error", Data: betError(err)})
		return
	}
	_ = client.Send(transport.Event{Type: "cancel_bet", Data: fiber.Map{
		"status":       result.Status,
		"refundAmount": result.RefundAmount,
		"newBalance":   result.NewBalance,
	}})
}

// betError shapes a ledger error as the {type, code?, message} the
// client expects; unrecognized errors fall back to a generic message
// rather than leaking internal detail.
func betError(err error) fiber.Map {
	if domainErr, ok := err.(*ledger.Error); ok {
		return fiber.Map{"type": "bet_error", "code": string(domainErr.Kind), "message": domainErr.Message}
	}
	return fiber.Map{"type": "bet_error", "message": "internal error"}
}
