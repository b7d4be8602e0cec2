package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

const genesisPrefix = "spine-audit-genesis:"

// Genesis is the prevHash of a tenant's first event.
func Genesis(tenantID string) string {
	sum := sha256.Sum256([]byte(genesisPrefix + tenantID))
	return hex.EncodeToString(sum[:])
}

// hashedFields is the canonical view of an event. PrevHash is appended to the
// serialization rather than embedded, and Hash is excluded.
type hashedFields struct {
	ID          string         `json:"id"`
	Seq         int64          `json:"seq"`
	TsISO       string         `json:"tsISO"`
	TenantID    string         `json:"tenantId"`
	ActorUserID string         `json:"actorUserId"`
	Role        string         `json:"role"`
	Type        string         `json:"type"`
	Details     map[string]any `json:"details"`
}

// Canonical returns the RFC 8785 serialization of the hashed fields of ev.
func Canonical(ev domain.AuditEvent) ([]byte, error) {
	details := ev.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(hashedFields{
		ID:          ev.ID,
		Seq:         ev.Seq,
		TsISO:       ev.TsISO,
		TenantID:    ev.TenantID,
		ActorUserID: ev.ActorUserID,
		Role:        string(ev.Role),
		Type:        string(ev.Type),
		Details:     details,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal audit event: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize audit event: %w", err)
	}
	return canon, nil
}

// Hash computes hex(sha256(Canonical(ev) || prevHash)).
func Hash(ev domain.AuditEvent, prevHash string) (string, error) {
	canon, err := Canonical(ev)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(canon)
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes a tenant's chain from genesis. It returns the index of
// the first event whose prevHash, hash or sequence does not match, or -1 when
// the chain is intact. The error is ErrChainBroken when index >= 0.
func Verify(tenantID string, events []domain.AuditEvent) (int, error) {
	prev := Genesis(tenantID)
	for i, ev := range events {
		if ev.TenantID != tenantID || ev.Seq != int64(i+1) || ev.PrevHash != prev {
			return i, brokenAt(i, ev)
		}
		want, err := Hash(ev, prev)
		if err != nil || want != ev.Hash {
			return i, brokenAt(i, ev)
		}
		prev = ev.Hash
	}
	return -1, nil
}

func brokenAt(i int, ev domain.AuditEvent) error {
	return domain.NewEngineError(domain.ErrChainBroken.Code,
		fmt.Sprintf("%s at index %d (event %s, seq %d)", domain.ErrChainBroken.Message, i, ev.ID, ev.Seq))
}
