// Package did parses and formats did:algo identifiers.
//
// Canonical form: did:algo:<base32 address>-<app id>
//
// The address is the standard 58-character account encoding (base32 of the
// 32-byte public key followed by a 4-byte checksum), the app id is the
// decimal id of the application that owns the document box.
package did

import (
	"strconv"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/types"

	dErrors "algodid/pkg/domain-errors"
)

const (
	Scheme = "did"
	Method = "algo"

	prefix = Scheme + ":" + Method + ":"
)

// Identifier names one subject's document in one application.
type Identifier struct {
	Address types.Address
	AppID   uint64
}

// New builds an identifier from raw parts.
func New(address types.Address, appID uint64) (Identifier, error) {
	if address == (types.Address{}) {
		return Identifier{}, dErrors.New(dErrors.CodeInvalidAddress, "address must not be the zero address")
	}
	if appID == 0 {
		return Identifier{}, dErrors.New(dErrors.CodeInvalidAppID, "app id must be a positive integer")
	}
	return Identifier{Address: address, AppID: appID}, nil
}

// Parse decodes the canonical string form.
func Parse(s string) (Identifier, error) {
	rest, ok := strings.CutPrefix(s, Scheme+":")
	if !ok {
		return Identifier{}, dErrors.Newf(dErrors.CodeMalformedIdentifier, "%q is not a DID", s)
	}
	method, rest, ok := strings.Cut(rest, ":")
	if !ok || method != Method {
		return Identifier{}, dErrors.Newf(dErrors.CodeMalformedIdentifier, "unsupported DID method %q", method)
	}

	// Base32 addresses never contain '-', so the last dash separates the app id.
	i := strings.LastIndexByte(rest, '-')
	if i <= 0 || i == len(rest)-1 {
		return Identifier{}, dErrors.Newf(dErrors.CodeMalformedIdentifier, "%q must be <address>-<app id>", rest)
	}
	addrPart, appPart := rest[:i], rest[i+1:]

	addr, err := types.DecodeAddress(addrPart)
	if err != nil {
		return Identifier{}, dErrors.Wrap(err, dErrors.CodeMalformedIdentifier, "invalid address")
	}

	// Reject signs and leading zeros so the string form stays canonical.
	if appPart[0] < '1' || appPart[0] > '9' {
		return Identifier{}, dErrors.Newf(dErrors.CodeMalformedIdentifier, "invalid app id %q", appPart)
	}
	appID, err := strconv.ParseUint(appPart, 10, 64)
	if err != nil {
		return Identifier{}, dErrors.Wrap(err, dErrors.CodeMalformedIdentifier, "invalid app id")
	}

	return Identifier{Address: addr, AppID: appID}, nil
}

// String returns the canonical form.
func (id Identifier) String() string {
	return prefix + id.Address.String() + "-" + strconv.FormatUint(id.AppID, 10)
}

// PublicKey returns the subject's raw 32-byte public key.
func (id Identifier) PublicKey() []byte {
	key := make([]byte, len(id.Address))
	copy(key, id.Address[:])
	return key
}

// MarshalText implements encoding.TextMarshaler.
func (id Identifier) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identifier) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
