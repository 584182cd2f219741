package txn

import (
	"github.com/algorand/go-algorand-sdk/v2/types"

	dErrors "algodid/pkg/domain-errors"
)

// Kind is the registry operation a group performs.
type Kind string

const (
	KindCreateIdentity Kind = "create_identity"
	KindUpsertDocument Kind = "upsert_document"
	KindDeleteDocument Kind = "delete_document"
)

// Signer produces signed transactions for one account.
type Signer interface {
	Address() types.Address
	SignTransaction(txn types.Transaction) (txID string, blob []byte, err error)
}

// Group is a built, unsigned transaction group. The transactions are in
// submission order and, when there is more than one, share ID so the ledger
// applies all of them or none.
type Group struct {
	Kind    Kind
	AppID   uint64
	Sender  types.Address
	ID      types.Digest
	Funding uint64 // µAlgo paid to the application account; 0 when no payment is needed
	Txns    []types.Transaction
}

// Funded reports whether the group starts with a funding payment.
func (g Group) Funded() bool {
	return g.Funding > 0
}

// Sign signs every transaction of the group with s.
func (g Group) Sign(s Signer) (*SignedGroup, error) {
	if s.Address() != g.Sender {
		return nil, dErrors.Newf(dErrors.CodeSigningFailed, "group sender %s does not match signer %s", g.Sender, s.Address())
	}
	signed := &SignedGroup{
		Kind:    g.Kind,
		AppID:   g.AppID,
		ID:      g.ID,
		Funding: g.Funding,
		Txns:    make([]SignedTxn, 0, len(g.Txns)),
	}
	for _, t := range g.Txns {
		txID, blob, err := s.SignTransaction(t)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeSigningFailed) {
				return nil, err
			}
			return nil, dErrors.Wrap(err, dErrors.CodeSigningFailed, "sign group transaction")
		}
		signed.Txns = append(signed.Txns, SignedTxn{TxID: txID, Txn: t, Blob: blob})
	}
	return signed, nil
}

// SignedTxn is one signed transaction with its encoded form.
type SignedTxn struct {
	TxID string
	Txn  types.Transaction
	Blob []byte
}

// SignedGroup is a signed group ready for submission.
type SignedGroup struct {
	Kind    Kind
	AppID   uint64
	ID      types.Digest
	Funding uint64
	Txns    []SignedTxn
}

// Bytes concatenates the encoded transactions for a single submission.
func (g *SignedGroup) Bytes() []byte {
	var n int
	for _, t := range g.Txns {
		n += len(t.Blob)
	}
	out := make([]byte, 0, n)
	for _, t := range g.Txns {
		out = append(out, t.Blob...)
	}
	return out
}

// TxIDs returns the ids of all transactions in order.
func (g *SignedGroup) TxIDs() []string {
	ids := make([]string, len(g.Txns))
	for i, t := range g.Txns {
		ids[i] = t.TxID
	}
	return ids
}

// CallTxID returns the id of the first application call. All transactions of
// a group confirm in the same round, so waiting on this one is enough.
func (g *SignedGroup) CallTxID() string {
	for _, t := range g.Txns {
		if t.Txn.Type == types.ApplicationCallTx {
			return t.TxID
		}
	}
	if len(g.Txns) > 0 {
		return g.Txns[0].TxID
	}
	return ""
}
