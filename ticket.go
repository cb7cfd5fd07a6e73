package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const ticketIssuer = "arena-allocator"

var errTicket = errors.New("invalid join ticket")

// TicketClaims bind a join to one session, player and unit type.
type TicketClaims struct {
	SessionID string `json:"sid"`
	Unit      string `json:"unit,omitempty"`
	jwt.RegisteredClaims
}

// Tickets signs and verifies join tickets. The allocator issues them; the
// hub verifies them at join when a secret is configured.
type Tickets struct {
	secret []byte
}

// NewTickets returns nil for an empty secret, which disables ticket checks.
func NewTickets(secret string) *Tickets {
	if secret == "" {
		return nil
	}
	return &Tickets{secret: []byte(secret)}
}

// Issue signs a ticket for playerID in sessionID valid for ttl.
func (t *Tickets) Issue(sessionID, playerID, unit string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := TicketClaims{
		SessionID: sessionID,
		Unit:      unit,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ticketIssuer,
			Subject:   playerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify checks token against the requested join and returns its claims.
func (t *Tickets) Verify(token, sessionID, playerID string) (*TicketClaims, error) {
	claims := &TicketClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(ticketIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errTicket, err)
	}
	if !parsed.Valid || claims.SessionID != sessionID || claims.Subject != playerID {
		return nil, errTicket
	}
	return claims, nil
}
