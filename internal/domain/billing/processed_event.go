package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/openbilling/backend/internal/domain/shared"
)

// ReconcileOutcome is the recorded result of applying a provider event
type ReconcileOutcome string

const (
	OutcomeApplied          ReconcileOutcome = "applied"
	OutcomeAlreadyProcessed ReconcileOutcome = "already_processed"
	OutcomeStaleReplay      ReconcileOutcome = "stale_replay"
)

// ProcessedEvent is one row of the idempotency ledger. The ledger is
// append-only and keyed by the provider event id; a row is written in the
// same transaction as the state change it records and never mutated after
// insert.
type ProcessedEvent struct {
	ProviderEventID string
	Provider        string
	EventType       ProviderEventType
	Sequence        int64
	Outcome         ReconcileOutcome
	StateHash       string
	ProcessedAt     time.Time
}

// NewProcessedEvent creates a ledger entry for an applied or discarded event
func NewProcessedEvent(event *ProviderEvent, outcome ReconcileOutcome, stateHash string) (*ProcessedEvent, error) {
	if event == nil || event.ProviderEventID == "" {
		return nil, shared.NewDomainError("INVALID_EVENT", "Ledger entry requires a provider event id")
	}
	return &ProcessedEvent{
		ProviderEventID: event.ProviderEventID,
		Provider:        event.Provider,
		EventType:       event.Type,
		Sequence:        event.Sequence,
		Outcome:         outcome,
		StateHash:       stateHash,
		ProcessedAt:     time.Now(),
	}, nil
}

// SubscriptionStateHash summarizes a subscription's reconciled state so a
// replayed event can be answered with the result of the original apply.
func SubscriptionStateHash(sub *Subscription) string {
	if sub == nil {
		return ""
	}
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d|%d|%d|%t",
		sub.ID, sub.Status, sub.LastSequence,
		sub.CurrentPeriodStart.Unix(), sub.CurrentPeriodEnd.Unix(),
		sub.CancelAtPeriodEnd))
	return hex.EncodeToString(h[:])
}
