// Package httputil holds the JSON response and request helpers shared by
// HTTP handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "algodid/pkg/domain-errors"
)

// maxBodyBytes bounds request bodies. The largest legitimate body is a
// document at the box limit plus a mnemonic.
const maxBodyBytes = 64 << 10

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:          http.StatusBadRequest,
	dErrors.CodeMalformedIdentifier: http.StatusBadRequest,
	dErrors.CodeInvalidAddress:      http.StatusBadRequest,
	dErrors.CodeInvalidAppID:        http.StatusBadRequest,
	dErrors.CodeSigningFailed:       http.StatusBadRequest,
	dErrors.CodeOversizedDocument:   http.StatusRequestEntityTooLarge,
	dErrors.CodeInvalidBoxContents:  http.StatusUnprocessableEntity,
	dErrors.CodeNotFound:            http.StatusNotFound,
	dErrors.CodeInsufficientBalance: http.StatusPaymentRequired,
	dErrors.CodeRejected:            http.StatusConflict,
	dErrors.CodeBoxReferenceMissing: http.StatusInternalServerError,
	dErrors.CodeRateLimited:         http.StatusTooManyRequests,
	dErrors.CodeNetwork:             http.StatusBadGateway,
	dErrors.CodeConfirmationTimeout: http.StatusGatewayTimeout,
	dErrors.CodeInternal:            http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for a domain error code.
func StatusFor(code dErrors.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as an ErrorResponse. Internal errors carry no
// description so implementation details do not leak.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := ErrorResponse{Error: string(code)}
	if code != dErrors.CodeInternal {
		resp.Description = dErrors.MessageOf(err)
	}
	WriteJSON(w, StatusFor(code), resp)
}

// Validatable is implemented by request bodies that check and normalise
// themselves after decoding.
type Validatable interface {
	Validate() error
}

// DecodeAndPrepare decodes the JSON body into a T and validates it. On
// failure it writes the error reply and returns false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req := PT(new(T))
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"request_id", requestID,
			"error", err,
		)
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			WriteError(w, dErrors.Newf(dErrors.CodeOversizedDocument, "request body exceeds %d bytes", maxBodyBytes))
		case errors.Is(err, io.EOF):
			WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body is required"))
		default:
			WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON in request body"))
		}
		return nil, false
	}
	if err := req.Validate(); err != nil {
		logger.WarnContext(ctx, "invalid request",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, err)
		return nil, false
	}
	return (*T)(req), true
}
