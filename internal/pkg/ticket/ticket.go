// Package ticket mints and verifies short-lived signed tickets a shard presents when
// reconnecting to the coordinator's internal link after the initial COORDINATION_SECRET
// handshake, so the raw secret isn't resent on every reconnect. Grounded on the
// teacher's internal/pkg/jwt/jwt.go Generator shape (New(secret), Generate*Token,
// Validate*Token), retargeted from Centrifugo connect/subscribe tokens to shard
// reconnect tickets.
package ticket

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTTL = 10 * time.Minute

var ErrInvalidTicket = errors.New("ticket: invalid or expired")

type claims struct {
	ShardID string `json:"shardId"`
	jwt.RegisteredClaims
}

type Generator struct {
	secret []byte
}

func New(secret string) *Generator {
	return &Generator{secret: []byte(secret)}
}

// GenerateShardTicket mints a ticket naming shardID, valid for defaultTTL.
func (g *Generator) GenerateShardTicket(shardID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		ShardID: shardID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(defaultTTL)),
		},
	})
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("ticket: sign: %w", err)
	}
	return signed, nil
}

// ValidateShardTicket returns the shard id named in a valid, unexpired ticket.
func (g *Generator) ValidateShardTicket(raw string) (string, error) {
	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("ticket: unexpected signing method %v", t.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidTicket
	}
	return c.ShardID, nil
}
