package registry

import (
	"algodid/internal/did"
	"algodid/internal/did/document"
	"algodid/internal/txn"
)

// Credential is a signing key held for one operation. The service wipes it
// as soon as the operation's transactions are signed.
type Credential interface {
	txn.Signer
	Wipe()
}

// Operation names a registry operation in logs, metrics and audit events.
type Operation string

const (
	OpCreateDID      Operation = "create_did"
	OpUploadDocument Operation = "upload_document"
	OpUpdateDocument Operation = "update_document"
	OpDeleteDocument Operation = "delete_document"
	OpResolve        Operation = "resolve"
)

// CreateResult is returned by CreateDID.
type CreateResult struct {
	DID   did.Identifier
	TxID  string
	Round uint64
}

// WriteResult is returned by document writes once the ledger confirmed them.
type WriteResult struct {
	DID     did.Identifier
	TxID    string   // id of the first application call
	TxIDs   []string // every transaction of the group, in order
	Round   uint64
	Funding uint64 // µAlgo paid to cover the application's minimum balance
}

// ResolveResult is returned by Resolve.
type ResolveResult struct {
	DID      did.Identifier
	Document document.Document
	Raw      []byte
}
