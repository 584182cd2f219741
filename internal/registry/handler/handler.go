package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"algodid/internal/credential"
	"algodid/internal/did"
	"algodid/internal/platform/middleware"
	"algodid/internal/ratelimit/models"
	"algodid/internal/registry"
	dErrors "algodid/pkg/domain-errors"
	audit "algodid/pkg/platform/audit"
	"algodid/pkg/platform/httputil"
)

// Service defines the registry operations served over HTTP.
type Service interface {
	CreateDID(ctx context.Context, cred registry.Credential, appID uint64) (*registry.CreateResult, error)
	UploadDocument(ctx context.Context, identifier string, payload []byte, cred registry.Credential) (*registry.WriteResult, error)
	UpdateDocument(ctx context.Context, identifier string, payload []byte, cred registry.Credential) (*registry.WriteResult, error)
	DeleteDocument(ctx context.Context, identifier string, cred registry.Credential) (*registry.WriteResult, error)
	Resolve(ctx context.Context, identifier string) (*registry.ResolveResult, error)
}

// EventLister reads back the audit trail of a DID.
type EventLister interface {
	List(ctx context.Context, did string) ([]audit.Event, error)
}

// RateLimiter throttles fee-bearing routes.
type RateLimiter interface {
	RateLimit(class models.EndpointClass) func(http.Handler) http.Handler
}

// Handler serves the DID registry endpoints.
type Handler struct {
	registry     Service
	logger       *slog.Logger
	defaultAppID uint64
	limiter      RateLimiter
	events       EventLister
	timeout      time.Duration
}

type Option func(*Handler)

// WithDefaultAppID sets the application used when POST /dids omits app_id.
func WithDefaultAppID(appID uint64) Option {
	return func(h *Handler) { h.defaultAppID = appID }
}

func WithRateLimiter(l RateLimiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// WithEventLister enables GET /dids/{did}/events.
func WithEventLister(l EventLister) Option {
	return func(h *Handler) { h.events = l }
}

// WithTimeout bounds each request. Writes wait for ledger confirmation, so
// keep it above the service's confirmation timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New creates a registry Handler.
func New(svc Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		registry: svc,
		logger:   logger,
		timeout:  90 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(h.timeout))
		r.Use(middleware.ContentTypeJSON)

		r.Group(func(r chi.Router) {
			r.Use(h.limit(models.ClassRead))
			r.Get("/dids/{did}", h.handleResolve)
			if h.events != nil {
				r.Get("/dids/{did}/events", h.handleListEvents)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(h.limit(models.ClassWrite))
			r.Post("/dids", h.handleCreateDID)
			r.Put("/dids/{did}/document", h.handleUploadDocument)
			r.Patch("/dids/{did}/document", h.handleUpdateDocument)
			r.Delete("/dids/{did}/document", h.handleDeleteDocument)
		})
	})
}

func (h *Handler) limit(class models.EndpointClass) func(http.Handler) http.Handler {
	if h.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.limiter.RateLimit(class)
}

func (h *Handler) handleCreateDID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateDIDRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	appID := req.AppID
	if appID == 0 {
		appID = h.defaultAppID
	}

	cred, ok := h.credential(w, r, req.Mnemonic)
	if !ok {
		return
	}
	res, err := h.registry.CreateDID(ctx, cred, appID)
	if err != nil {
		h.fail(w, r, "create did", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, CreateDIDResponse{
		DID:            res.DID.String(),
		TxID:           res.TxID,
		ConfirmedRound: res.Round,
	})
}

func (h *Handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	h.writeDocument(w, r, "upload document", h.registry.UploadDocument)
}

func (h *Handler) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	h.writeDocument(w, r, "update document", h.registry.UpdateDocument)
}

type writeFunc func(ctx context.Context, identifier string, payload []byte, cred registry.Credential) (*registry.WriteResult, error)

func (h *Handler) writeDocument(w http.ResponseWriter, r *http.Request, op string, write writeFunc) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	identifier, ok := h.identifier(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[WriteDocumentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	cred, ok := h.credential(w, r, req.Mnemonic)
	if !ok {
		return
	}

	res, err := write(ctx, identifier, req.Document, cred)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toWriteResponse(res))
}

func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	identifier, ok := h.identifier(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[DeleteDocumentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	cred, ok := h.credential(w, r, req.Mnemonic)
	if !ok {
		return
	}

	res, err := h.registry.DeleteDocument(ctx, identifier, cred)
	if err != nil {
		h.fail(w, r, "delete document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toWriteResponse(res))
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	identifier, ok := h.identifier(w, r)
	if !ok {
		return
	}
	res, err := h.registry.Resolve(r.Context(), identifier)
	if err != nil {
		h.fail(w, r, "resolve", err)
		return
	}

	// Stored bytes are already canonical JSON; serve them as-is.
	w.Header().Set("Content-Type", "application/did+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Raw)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	identifier, ok := h.identifier(w, r)
	if !ok {
		return
	}
	id, err := did.Parse(identifier)
	if err != nil {
		h.fail(w, r, "list events", err)
		return
	}
	events, err := h.events.List(r.Context(), id.String())
	if err != nil {
		h.fail(w, r, "list events", dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventsResponse(id.String(), events))
}

func (h *Handler) identifier(w http.ResponseWriter, r *http.Request) (string, bool) {
	identifier, err := url.PathUnescape(chi.URLParam(r, "did"))
	if err != nil || identifier == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeMalformedIdentifier, "did is required"))
		return "", false
	}
	return identifier, true
}

func (h *Handler) credential(w http.ResponseWriter, r *http.Request, phrase string) (*credential.Credential, bool) {
	cred, err := credential.FromMnemonic(phrase)
	if err != nil {
		// neither the phrase nor the decoder's error text leaves this function
		h.logger.WarnContext(r.Context(), "invalid mnemonic",
			"request_id", middleware.GetRequestID(r.Context()),
			"code", dErrors.CodeOf(err),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid mnemonic"))
		return nil, false
	}
	return cred, true
}

// fail writes err and logs it at a level matching whose fault it is.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	status := httputil.StatusFor(dErrors.CodeOf(err))
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"operation", op,
		"code", dErrors.CodeOf(err),
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "registry operation failed", attrs...)
	} else {
		h.logger.WarnContext(ctx, "registry operation refused", attrs...)
	}
	httputil.WriteError(w, err)
}
