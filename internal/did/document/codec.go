// Package document converts DID documents to and from the bytes stored in a box.
//
// Documents are JSON objects. The registry enforces no schema beyond that;
// encoding is canonical (sorted keys, compact, numbers kept verbatim) so the
// same document always produces the same box value and therefore the same
// content digest.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"algodid/internal/box"
	dErrors "algodid/pkg/domain-errors"
)

// Document is a decoded DID document.
type Document map[string]any

// ID returns the document's "id" member, if it is a string.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// Raw returns the canonical encoding of d.
func (d Document) Raw() ([]byte, error) {
	return Encode(d)
}

// Encode serialises doc canonically. doc may be a Document, a map, a struct
// or a json.RawMessage; anything that does not encode to a JSON object is
// rejected.
func Encode(doc any) ([]byte, error) {
	raw, err := marshal(doc)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "document is not JSON encodable")
	}
	return Normalize(raw)
}

// Normalize re-encodes client supplied JSON bytes into canonical form.
func Normalize(raw []byte) ([]byte, error) {
	doc, err := parse(raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "document must be a JSON object")
	}
	out, err := marshal(doc)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode document")
	}
	if len(out) > box.MaxDocumentSize {
		return nil, dErrors.Newf(dErrors.CodeOversizedDocument,
			"document is %d bytes, limit is %d", len(out), box.MaxDocumentSize)
	}
	return out, nil
}

// Decode parses a box value. Malformed content yields CodeInvalidBoxContents
// so callers can tell "unreadable box" apart from "no box".
func Decode(b []byte) (Document, error) {
	doc, err := parse(b)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidBoxContents, "box does not hold a JSON document")
	}
	return doc, nil
}

var errTrailingData = errors.New("unexpected data after JSON object")

func parse(b []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("top-level JSON value is not an object")
	}
	return Document(obj), nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
