// Package confirm stores pending confirmations between the turn that issues a
// token and the turn that redeems it.
package confirm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// DefaultTTL is how long a pending confirmation stays redeemable.
const DefaultTTL = 5 * time.Minute

// Binding is what a token is tied to. A token only redeems the exact action
// with the exact input, for the same user in the same tenant.
type Binding struct {
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	Action    string `json:"action"`
	InputHash string `json:"input_hash"`
}

// String is the canonical form stored by the Redis backend.
func (b Binding) String() string {
	return strings.Join([]string{b.TenantID, b.UserID, b.Action, b.InputHash}, "|")
}

// Pending is an issued, not yet redeemed confirmation.
type Pending struct {
	Token     string
	Binding   Binding
	ExpiresAt time.Time
}

// Store persists pending confirmations.
type Store interface {
	Put(ctx context.Context, p Pending) error
	// Consume redeems token for b. It returns ErrConfirmationInvalid when the
	// token is unknown or bound to something else, and ErrConfirmationExpired
	// when it outlived its TTL. A successful consume deletes the token.
	Consume(ctx context.Context, token string, b Binding) error
}

// NewBinding hashes input canonically so key order and number formatting do
// not change the binding.
func NewBinding(actor domain.ActorContext, action string, input map[string]any) (Binding, error) {
	h, err := InputHash(input)
	if err != nil {
		return Binding{}, err
	}
	return Binding{
		TenantID:  actor.TenantID,
		UserID:    actor.UserID,
		Action:    action,
		InputHash: h,
	}, nil
}

// InputHash returns hex(sha256(JCS(input))).
func InputHash(input map[string]any) (string, error) {
	if input == nil {
		input = map[string]any{}
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("marshal input: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize input: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
