package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Ledger adapters return these
// (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: the box or application does not exist on the ledger
// - ErrUnavailable: the node answers but cannot serve current state yet
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
)
