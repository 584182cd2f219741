// Package txn builds the transaction groups of the registry's write
// operations. Builders are pure: suggested parameters and the current box
// state are supplied by the caller, nothing here touches the network.
package txn

import (
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"algodid/internal/box"
	dErrors "algodid/pkg/domain-errors"
)

// defaultMinFee is used when the node's parameters carry no minimum fee.
const defaultMinFee = 1000

// UpsertParams describes a document write.
type UpsertParams struct {
	AppID    uint64
	Subject  []byte // 32-byte public key of the DID subject
	Document []byte // canonical document bytes
	Current  box.State
	Sender   types.Address
	Params   types.SuggestedParams
}

// DeleteParams describes a document removal.
type DeleteParams struct {
	AppID   uint64
	Subject []byte
	Current box.State
	Sender  types.Address
	Params  types.SuggestedParams
}

// BuildCreateIdentity builds the opt-in call that registers sender with the
// application. It touches no box.
func BuildCreateIdentity(appID uint64, sender types.Address, sp types.SuggestedParams) (Group, error) {
	if err := validate(appID, sender); err != nil {
		return Group{}, err
	}
	t, err := transaction.MakeApplicationOptInTx(
		appID, [][]byte{selRegister}, nil, nil, nil,
		flatFee(sp), sender, nil, types.Digest{}, [32]byte{}, types.Address{},
	)
	if err != nil {
		return Group{}, dErrors.Wrap(err, dErrors.CodeInternal, "make register call")
	}
	return Group{
		Kind:   KindCreateIdentity,
		AppID:  appID,
		Sender: sender,
		Txns:   []types.Transaction{t},
	}, nil
}

// BuildUpsertDocument builds the group that writes p.Document into the
// subject's box. When the write grows the application's minimum balance the
// group starts with a payment of exactly that amount to the application
// account.
func BuildUpsertDocument(p UpsertParams) (Group, error) {
	if err := validate(p.AppID, p.Sender); err != nil {
		return Group{}, err
	}
	name, err := box.NameFor(p.Subject)
	if err != nil {
		return Group{}, err
	}
	if len(p.Document) == 0 {
		return Group{}, dErrors.New(dErrors.CodeBadRequest, "document must not be empty")
	}
	if len(p.Document) > box.MaxDocumentSize {
		return Group{}, dErrors.Newf(dErrors.CodeOversizedDocument,
			"document is %d bytes, limit is %d", len(p.Document), box.MaxDocumentSize)
	}

	newSize := uint32(len(p.Document))
	sp := flatFee(p.Params)

	chunks := split(p.Document, box.ChunkSize)
	calls := make([][][]byte, len(chunks))
	for i, c := range chunks {
		calls[i] = encodeUpload(UploadArgs{
			Subject: name,
			Prior:   p.Current.Digest,
			Total:   newSize,
			Offset:  uint32(i * box.ChunkSize),
			Chunk:   c,
		})
	}

	var funding uint64
	if delta := box.MinBalanceDelta(p.Current.SizePtr(), &newSize); delta > 0 {
		funding = uint64(delta)
	}

	txns, err := assemble(p.AppID, p.Sender, name, max(p.Current.Size, newSize), calls, funding, sp)
	if err != nil {
		return Group{}, err
	}
	return Group{
		Kind:    KindUpsertDocument,
		AppID:   p.AppID,
		Sender:  p.Sender,
		ID:      txns[0].Group,
		Funding: funding,
		Txns:    txns,
	}, nil
}

// BuildDelete builds the group that removes the subject's box. Deleting
// releases minimum balance back to the application, so no payment is made.
func BuildDelete(p DeleteParams) (Group, error) {
	if err := validate(p.AppID, p.Sender); err != nil {
		return Group{}, err
	}
	name, err := box.NameFor(p.Subject)
	if err != nil {
		return Group{}, err
	}
	if !p.Current.Exists {
		return Group{}, dErrors.New(dErrors.CodeNotFound, "no document box to delete")
	}

	calls := [][][]byte{encodeDelete(DeleteArgs{Subject: name, Prior: p.Current.Digest})}
	txns, err := assemble(p.AppID, p.Sender, name, p.Current.Size, calls, 0, flatFee(p.Params))
	if err != nil {
		return Group{}, err
	}
	return Group{
		Kind:   KindDeleteDocument,
		AppID:  p.AppID,
		Sender: p.Sender,
		ID:     txns[0].Group,
		Txns:   txns,
	}, nil
}

// assemble turns method calls into transactions: it spreads enough box
// references for ioSize bytes over the calls (every call gets at least one),
// appends reserve calls when the method calls cannot carry them all,
// prepends the funding payment and assigns the group id.
func assemble(appID uint64, sender types.Address, name []byte, ioSize uint32, calls [][][]byte, funding uint64, sp types.SuggestedParams) ([]types.Transaction, error) {
	need := max(box.ReferenceCount(ioSize), len(calls))
	for len(calls)*box.MaxReferencesPerCall < need {
		calls = append(calls, [][]byte{selReserve})
	}
	refs := box.ReferencesFor(appID, name, uint32(need*box.IOBudgetPerReference))

	size := len(calls)
	if funding > 0 {
		size++
	}
	if size > box.MaxGroupSize {
		return nil, dErrors.Newf(dErrors.CodeOversizedDocument,
			"write needs %d transactions, a group holds at most %d", size, box.MaxGroupSize)
	}

	txns := make([]types.Transaction, 0, size)
	if funding > 0 {
		pay, err := transaction.MakePaymentTxn(
			sender.String(), crypto.GetApplicationAddress(appID).String(),
			funding, nil, "", sp,
		)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "make funding payment")
		}
		txns = append(txns, pay)
	}

	for i, args := range calls {
		if argsSize(args) > box.MaxAppArgsBytes {
			return nil, dErrors.Newf(dErrors.CodeInternal, "call %d arguments exceed %d bytes", i, box.MaxAppArgsBytes)
		}
		n := need / len(calls)
		if i < need%len(calls) {
			n++
		}

		// Identical reserve calls would share a transaction id.
		var note []byte
		if Method(args) == SigReserve {
			note = fmt.Appendf(nil, "reserve:%d", i)
		}
		call, err := transaction.MakeApplicationNoOpTxWithBoxes(
			appID, args, nil, nil, nil, refs[:n],
			sp, sender, note, types.Digest{}, [32]byte{}, types.Address{},
		)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "make application call")
		}
		txns = append(txns, call)
		refs = refs[n:]
	}

	if len(txns) > 1 {
		gid, err := crypto.ComputeGroupID(txns)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "compute group id")
		}
		for i := range txns {
			txns[i].Group = gid
		}
	}
	return txns, nil
}

func validate(appID uint64, sender types.Address) error {
	if appID == 0 {
		return dErrors.New(dErrors.CodeInvalidAppID, "app id must be a positive integer")
	}
	if sender == (types.Address{}) {
		return dErrors.New(dErrors.CodeInvalidAddress, "sender must not be the zero address")
	}
	return nil
}

// flatFee pins every transaction to the minimum fee so group cost does not
// depend on encoded size.
func flatFee(sp types.SuggestedParams) types.SuggestedParams {
	fee := sp.MinFee
	if fee == 0 {
		fee = defaultMinFee
	}
	sp.FlatFee = true
	sp.Fee = types.MicroAlgos(fee)
	return sp
}

func split(b []byte, size int) [][]byte {
	var out [][]byte
	for len(b) > size {
		out = append(out, b[:size])
		b = b[size:]
	}
	return append(out, b)
}
