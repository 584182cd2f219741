package txn

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/abi"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"algodid/internal/box"
)

// ARC-4 signatures of the registry application's methods.
const (
	SigRegister = "register()void"
	SigUpload   = "upload(byte[32],byte[32],uint32,uint32,byte[])void"
	SigDelete   = "delete(byte[32],byte[32])void"
	SigReserve  = "reserve()void"
)

var (
	selRegister = selector(SigRegister)
	selUpload   = selector(SigUpload)
	selDelete   = selector(SigDelete)
	selReserve  = selector(SigReserve)
)

func selector(sig string) []byte {
	m, err := abi.MethodFromSignature(sig)
	if err != nil {
		panic(fmt.Sprintf("txn: bad method signature %q: %v", sig, err))
	}
	return m.GetSelector()
}

// Method names the contract method an argument list invokes, or "" when the
// selector is unknown.
func Method(args [][]byte) string {
	if len(args) == 0 {
		return ""
	}
	switch {
	case bytes.Equal(args[0], selRegister):
		return SigRegister
	case bytes.Equal(args[0], selUpload):
		return SigUpload
	case bytes.Equal(args[0], selDelete):
		return SigDelete
	case bytes.Equal(args[0], selReserve):
		return SigReserve
	}
	return ""
}

// UploadArgs are the decoded arguments of an upload call.
type UploadArgs struct {
	Subject []byte
	Prior   box.Digest
	Total   uint32
	Offset  uint32
	Chunk   []byte
}

// DeleteArgs are the decoded arguments of a delete call.
type DeleteArgs struct {
	Subject []byte
	Prior   box.Digest
}

func encodeUpload(a UploadArgs) [][]byte {
	chunk := make([]byte, 2+len(a.Chunk))
	binary.BigEndian.PutUint16(chunk, uint16(len(a.Chunk)))
	copy(chunk[2:], a.Chunk)

	return [][]byte{
		selUpload,
		a.Subject,
		a.Prior[:],
		binary.BigEndian.AppendUint32(nil, a.Total),
		binary.BigEndian.AppendUint32(nil, a.Offset),
		chunk,
	}
}

// DecodeUpload parses the arguments of an upload call.
func DecodeUpload(args [][]byte) (UploadArgs, error) {
	if Method(args) != SigUpload || len(args) != 6 {
		return UploadArgs{}, fmt.Errorf("not an upload call")
	}
	if len(args[1]) != box.KeySize || len(args[2]) != box.DigestSize || len(args[3]) != 4 || len(args[4]) != 4 || len(args[5]) < 2 {
		return UploadArgs{}, fmt.Errorf("malformed upload arguments")
	}
	n := int(binary.BigEndian.Uint16(args[5]))
	if len(args[5]) != 2+n {
		return UploadArgs{}, fmt.Errorf("chunk length prefix %d does not match %d bytes", n, len(args[5])-2)
	}
	out := UploadArgs{
		Subject: args[1],
		Total:   binary.BigEndian.Uint32(args[3]),
		Offset:  binary.BigEndian.Uint32(args[4]),
		Chunk:   args[5][2:],
	}
	copy(out.Prior[:], args[2])
	return out, nil
}

func encodeDelete(a DeleteArgs) [][]byte {
	return [][]byte{selDelete, a.Subject, a.Prior[:]}
}

// DecodeDelete parses the arguments of a delete call.
func DecodeDelete(args [][]byte) (DeleteArgs, error) {
	if Method(args) != SigDelete || len(args) != 3 {
		return DeleteArgs{}, fmt.Errorf("not a delete call")
	}
	if len(args[1]) != box.KeySize || len(args[2]) != box.DigestSize {
		return DeleteArgs{}, fmt.Errorf("malformed delete arguments")
	}
	out := DeleteArgs{Subject: args[1]}
	copy(out.Prior[:], args[2])
	return out, nil
}

func argsSize(args [][]byte) int {
	n := 0
	for _, a := range args {
		n += len(a)
	}
	return n
}

// DeclaredBoxes returns the boxes a transaction references, with application
// indexes resolved to application ids.
func DeclaredBoxes(t types.Transaction) []types.AppBoxReference {
	appID := uint64(t.ApplicationID)
	refs := make([]types.AppBoxReference, 0, len(t.BoxReferences))
	for _, r := range t.BoxReferences {
		id := appID
		if r.ForeignAppIdx > 0 && int(r.ForeignAppIdx) <= len(t.ForeignApps) {
			id = uint64(t.ForeignApps[r.ForeignAppIdx-1])
		}
		refs = append(refs, types.AppBoxReference{AppID: id, Name: r.Name})
	}
	return refs
}
