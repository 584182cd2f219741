// Package box maps DID subjects onto application box storage: box naming,
// minimum-balance accounting and the box references a transaction group has
// to declare before the ledger lets it touch a box.
package box

import (
	"crypto/sha512"

	"github.com/algorand/go-algorand-sdk/v2/types"

	dErrors "algodid/pkg/domain-errors"
)

// Ledger protocol constants. These mirror the consensus parameters of the
// current protocol version; funding transactions are computed from them, so a
// mismatch makes the contract reject the write.
const (
	// MinBalancePerBox is the flat reserve for every box an application owns.
	MinBalancePerBox = 2500
	// MinBalancePerByte is charged for each byte of box name plus box value.
	MinBalancePerByte = 400
	// MaxBoxSize is the largest value a single box may hold.
	MaxBoxSize = 32768
	// IOBudgetPerReference is the read/write quota one box reference adds to a group.
	IOBudgetPerReference = 1024
	// MaxReferencesPerCall bounds the foreign references (boxes included) of one call.
	MaxReferencesPerCall = 8
	// MaxAppArgsBytes bounds the total size of one call's application arguments.
	MaxAppArgsBytes = 2048
	// MaxGroupSize bounds an atomic transaction group.
	MaxGroupSize = 16

	// KeySize is the length of a subject public key and therefore of a box name.
	KeySize = 32

	// UploadArgsOverhead is the argument space an upload call spends on
	// everything but the chunk: selector, subject key, prior digest,
	// total size, offset and the chunk's length prefix.
	UploadArgsOverhead = 4 + KeySize + DigestSize + 4 + 4 + 2
	// ChunkSize is the document payload one upload call can carry.
	ChunkSize = MaxAppArgsBytes - UploadArgsOverhead
	// MaxDocumentSize is the largest document one atomic group can write:
	// every slot but the funding payment carries a chunk, capped by the box limit.
	MaxDocumentSize = min(MaxBoxSize, (MaxGroupSize-1)*ChunkSize)

	// DigestSize is the length of a box content digest.
	DigestSize = sha512.Size256
)

// Digest identifies a box value. The zero digest stands for "no box".
type Digest [DigestSize]byte

// State is what the registry knows about a box right before it writes.
type State struct {
	Exists bool
	Size   uint32
	Digest Digest
}

// Absent is the state of a box that does not exist.
var Absent = State{}

// StateOf describes an existing box holding value.
func StateOf(value []byte) State {
	return State{
		Exists: true,
		Size:   uint32(len(value)),
		Digest: DigestOf(value),
	}
}

// SizePtr returns the box size, or nil when the box is absent.
func (s State) SizePtr() *uint32 {
	if !s.Exists {
		return nil
	}
	size := s.Size
	return &size
}

// DigestOf hashes a box value with SHA-512/256, the ledger's native hash.
func DigestOf(value []byte) Digest {
	return sha512.Sum512_256(value)
}

// NameFor returns the box name of a subject: the raw public key bytes.
func NameFor(pubkey []byte) ([]byte, error) {
	if len(pubkey) != KeySize {
		return nil, dErrors.Newf(dErrors.CodeInvalidAddress, "public key must be %d bytes, got %d", KeySize, len(pubkey))
	}
	name := make([]byte, KeySize)
	copy(name, pubkey)
	return name, nil
}

// MinBalance is the reserve an application holds for one box of size bytes.
func MinBalance(size uint32) int64 {
	return MinBalancePerBox + MinBalancePerByte*(int64(KeySize)+int64(size))
}

// MinBalanceDelta is the change in the application's reserve when a box goes
// from oldSize to newSize; nil means the box does not exist on that side.
func MinBalanceDelta(oldSize, newSize *uint32) int64 {
	return reserve(newSize) - reserve(oldSize)
}

func reserve(size *uint32) int64 {
	if size == nil {
		return 0
	}
	return MinBalance(*size)
}

// References returns the single reference needed to touch the box at all.
func References(appID uint64, name []byte) []types.AppBoxReference {
	return []types.AppBoxReference{{AppID: appID, Name: name}}
}

// ReferencesFor returns enough references to the box for the group to read
// and write size bytes of it.
func ReferencesFor(appID uint64, name []byte, size uint32) []types.AppBoxReference {
	refs := make([]types.AppBoxReference, ReferenceCount(size))
	for i := range refs {
		refs[i] = types.AppBoxReference{AppID: appID, Name: name}
	}
	return refs
}

// ReferenceCount is the number of references covering size bytes of I/O.
func ReferenceCount(size uint32) int {
	n := (int(size) + IOBudgetPerReference - 1) / IOBudgetPerReference
	return max(n, 1)
}

// Covers reports whether refs declare the box name for appID. A reference
// with AppID 0 addresses the called application.
func Covers(refs []types.AppBoxReference, appID uint64, name []byte) bool {
	for _, ref := range refs {
		if (ref.AppID == appID || ref.AppID == 0) && string(ref.Name) == string(name) {
			return true
		}
	}
	return false
}
