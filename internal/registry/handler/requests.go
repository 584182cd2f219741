package handler

import (
	"bytes"
	"encoding/json"
	"strings"

	dErrors "algodid/pkg/domain-errors"
)

// CreateDIDRequest registers the mnemonic's account with an application.
// AppID falls back to the server's default application when zero.
type CreateDIDRequest struct {
	Mnemonic string `json:"mnemonic"`
	AppID    uint64 `json:"app_id,omitempty"`
}

func (r *CreateDIDRequest) Validate() error {
	r.Mnemonic = normalizeMnemonic(r.Mnemonic)
	if r.Mnemonic == "" {
		return dErrors.New(dErrors.CodeBadRequest, "mnemonic is required")
	}
	return nil
}

// WriteDocumentRequest carries a document for upload or update.
type WriteDocumentRequest struct {
	Mnemonic string          `json:"mnemonic"`
	Document json.RawMessage `json:"document"`
}

func (r *WriteDocumentRequest) Validate() error {
	r.Mnemonic = normalizeMnemonic(r.Mnemonic)
	if r.Mnemonic == "" {
		return dErrors.New(dErrors.CodeBadRequest, "mnemonic is required")
	}
	doc := bytes.TrimSpace(r.Document)
	if len(doc) == 0 || bytes.Equal(doc, []byte("null")) {
		return dErrors.New(dErrors.CodeBadRequest, "document is required")
	}
	r.Document = doc
	return nil
}

// DeleteDocumentRequest authorises removal of a document.
type DeleteDocumentRequest struct {
	Mnemonic string `json:"mnemonic"`
}

func (r *DeleteDocumentRequest) Validate() error {
	r.Mnemonic = normalizeMnemonic(r.Mnemonic)
	if r.Mnemonic == "" {
		return dErrors.New(dErrors.CodeBadRequest, "mnemonic is required")
	}
	return nil
}

// normalizeMnemonic collapses whitespace so pasted phrases with newlines or
// double spaces still decode.
func normalizeMnemonic(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
