// Package ports defines the collaborators the registry service consumes.
// Adapters under internal/ledger implement Ledger; pkg/platform/audit
// implements AuditPublisher.
package ports

//go:generate mockgen -source=ports.go -destination=../mocks/mocks.go -package=mocks Ledger,AuditPublisher

import (
	"context"

	"github.com/algorand/go-algorand-sdk/v2/types"

	"algodid/internal/txn"
	audit "algodid/pkg/platform/audit"
)

// Confirmation is the ledger's acknowledgement of a submitted group.
type Confirmation struct {
	TxID  string
	Round uint64
}

// Ledger is the client side of the blockchain node.
//
// Error contract: Box returns sentinel.ErrNotFound (possibly wrapped) when the
// box does not exist. Everything else returns domain errors: CodeNetwork for
// transport failures, CodeRejected, CodeInsufficientBalance or
// CodeBoxReferenceMissing for refused submissions, CodeConfirmationTimeout
// when the bound on rounds is exceeded.
type Ledger interface {
	// SuggestedParams returns fresh transaction parameters.
	SuggestedParams(ctx context.Context) (types.SuggestedParams, error)

	// Submit sends a signed group and returns the id the node assigned.
	Submit(ctx context.Context, group *txn.SignedGroup) (string, error)

	// WaitForConfirmation polls until txID is confirmed, rejected, or
	// maxRounds rounds have passed.
	WaitForConfirmation(ctx context.Context, txID string, maxRounds uint64) (*Confirmation, error)

	// Box returns the value of an application box.
	Box(ctx context.Context, appID uint64, name []byte) ([]byte, error)
}

// AuditPublisher emits audit events for confirmed writes.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
