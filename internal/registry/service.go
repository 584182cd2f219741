// Package registry implements the DID document lifecycle on top of
// application box storage: create identity, upload, update, delete and
// resolve. The service keeps no state between calls; every operation reads
// from or writes through the ledger.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"algodid/internal/box"
	"algodid/internal/did"
	"algodid/internal/did/document"
	"algodid/internal/registry/metrics"
	"algodid/internal/registry/ports"
	"algodid/internal/txn"
	dErrors "algodid/pkg/domain-errors"
	"algodid/pkg/platform/sentinel"
)

const (
	defaultConfirmationRounds  = 10
	defaultConfirmationTimeout = 60 * time.Second
	defaultReadAttempts        = 3
	defaultReadBackoff         = 200 * time.Millisecond
)

// Service coordinates registry operations against the ledger.
type Service struct {
	ledger  ports.Ledger
	audit   ports.AuditPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	confirmationRounds  uint64
	confirmationTimeout time.Duration
	readAttempts        uint64
	readBackoff         time.Duration
	now                 func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithAuditPublisher records confirmed writes.
func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConfirmation bounds the wait for confirmation by rounds and wall time.
func WithConfirmation(rounds uint64, timeout time.Duration) Option {
	return func(s *Service) {
		if rounds > 0 {
			s.confirmationRounds = rounds
		}
		if timeout > 0 {
			s.confirmationTimeout = timeout
		}
	}
}

// WithReadRetry bounds retries of read-only ledger calls. attempts counts
// the first try.
func WithReadRetry(attempts uint64, initial time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.readAttempts = attempts
		}
		if initial > 0 {
			s.readBackoff = initial
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewService constructs a registry service.
func NewService(ledger ports.Ledger, opts ...Option) *Service {
	s := &Service{
		ledger:              ledger,
		logger:              slog.Default(),
		tracer:              otel.Tracer("algodid/internal/registry"),
		confirmationRounds:  defaultConfirmationRounds,
		confirmationTimeout: defaultConfirmationTimeout,
		readAttempts:        defaultReadAttempts,
		readBackoff:         defaultReadBackoff,
		now:                 time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CreateDID registers the credential's account with the application and
// returns the account's identifier.
func (s *Service) CreateDID(ctx context.Context, cred Credential, appID uint64) (res *CreateResult, err error) {
	defer cred.Wipe()
	ctx, finish := s.begin(ctx, OpCreateDID, attribute.Int64("app_id", int64(appID)))
	defer func() { finish(err) }()

	id, err := did.New(cred.Address(), appID)
	if err != nil {
		return nil, err
	}
	sp, err := s.suggestedParams(ctx)
	if err != nil {
		return nil, err
	}
	group, err := txn.BuildCreateIdentity(appID, cred.Address(), sp)
	if err != nil {
		return nil, err
	}
	conf, _, err := s.execute(ctx, OpCreateDID, id, group, cred)
	if err != nil {
		return nil, err
	}
	return &CreateResult{DID: id, TxID: conf.TxID, Round: conf.Round}, nil
}

// UploadDocument writes the first version of a DID document.
func (s *Service) UploadDocument(ctx context.Context, identifier string, payload []byte, cred Credential) (*WriteResult, error) {
	return s.upsert(ctx, OpUploadDocument, identifier, payload, cred)
}

// UpdateDocument replaces a DID document. Box storage has no separate
// create and replace primitives, so this shares the upload path; whether a
// box must or must not already exist is for the application to decide.
func (s *Service) UpdateDocument(ctx context.Context, identifier string, payload []byte, cred Credential) (*WriteResult, error) {
	return s.upsert(ctx, OpUpdateDocument, identifier, payload, cred)
}

func (s *Service) upsert(ctx context.Context, op Operation, identifier string, payload []byte, cred Credential) (res *WriteResult, err error) {
	defer cred.Wipe()
	ctx, finish := s.begin(ctx, op, attribute.String("did", identifier))
	defer func() { finish(err) }()

	id, err := did.Parse(identifier)
	if err != nil {
		return nil, err
	}
	doc, err := document.Normalize(payload)
	if err != nil {
		return nil, err
	}
	if err := checkSubject(id, cred); err != nil {
		return nil, err
	}
	current, err := s.boxState(ctx, id)
	if err != nil {
		return nil, err
	}
	sp, err := s.suggestedParams(ctx)
	if err != nil {
		return nil, err
	}
	group, err := txn.BuildUpsertDocument(txn.UpsertParams{
		AppID:    id.AppID,
		Subject:  id.PublicKey(),
		Document: doc,
		Current:  current,
		Sender:   cred.Address(),
		Params:   sp,
	})
	if err != nil {
		return nil, err
	}
	conf, signed, err := s.execute(ctx, op, id, group, cred)
	if err != nil {
		return nil, err
	}
	return &WriteResult{
		DID:     id,
		TxID:    conf.TxID,
		TxIDs:   signed.TxIDs(),
		Round:   conf.Round,
		Funding: signed.Funding,
	}, nil
}

// DeleteDocument removes the subject's document box.
func (s *Service) DeleteDocument(ctx context.Context, identifier string, cred Credential) (res *WriteResult, err error) {
	defer cred.Wipe()
	ctx, finish := s.begin(ctx, OpDeleteDocument, attribute.String("did", identifier))
	defer func() { finish(err) }()

	id, err := did.Parse(identifier)
	if err != nil {
		return nil, err
	}
	if err := checkSubject(id, cred); err != nil {
		return nil, err
	}
	current, err := s.boxState(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Exists {
		return nil, dErrors.New(dErrors.CodeNotFound, "no document box to delete for "+id.String())
	}
	sp, err := s.suggestedParams(ctx)
	if err != nil {
		return nil, err
	}
	group, err := txn.BuildDelete(txn.DeleteParams{
		AppID:   id.AppID,
		Subject: id.PublicKey(),
		Current: current,
		Sender:  cred.Address(),
		Params:  sp,
	})
	if err != nil {
		return nil, err
	}
	conf, signed, err := s.execute(ctx, OpDeleteDocument, id, group, cred)
	if err != nil {
		return nil, err
	}
	return &WriteResult{
		DID:   id,
		TxID:  conf.TxID,
		TxIDs: signed.TxIDs(),
		Round: conf.Round,
	}, nil
}

// Resolve reads and decodes the subject's document. A missing box is
// CodeNotFound; a box that does not hold a JSON document is
// CodeInvalidBoxContents.
func (s *Service) Resolve(ctx context.Context, identifier string) (res *ResolveResult, err error) {
	ctx, finish := s.begin(ctx, OpResolve, attribute.String("did", identifier))
	defer func() { finish(err) }()

	id, err := did.Parse(identifier)
	if err != nil {
		return nil, err
	}
	raw, err := s.fetchBox(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "no document for "+id.String())
		}
		return nil, err
	}
	doc, err := document.Decode(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "document box is unreadable",
			"did", id.String(),
			"size", len(raw),
			"error", err,
		)
		return nil, err
	}
	return &ResolveResult{DID: id, Document: doc, Raw: raw}, nil
}

// checkSubject enforces that only the subject's own key writes its box.
// The application refuses anything else, so there is no point paying for
// the round trip.
func checkSubject(id did.Identifier, cred Credential) error {
	if cred.Address() != id.Address {
		return dErrors.Newf(dErrors.CodeInvalidAddress,
			"signer %s is not the subject of %s", cred.Address(), id.String())
	}
	return nil
}

// boxState reads the subject's box so a write can be built against it.
func (s *Service) boxState(ctx context.Context, id did.Identifier) (box.State, error) {
	raw, err := s.fetchBox(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return box.Absent, nil
	}
	if err != nil {
		return box.State{}, err
	}
	return box.StateOf(raw), nil
}

func (s *Service) fetchBox(ctx context.Context, id did.Identifier) ([]byte, error) {
	name, err := box.NameFor(id.PublicKey())
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = s.retryRead(ctx, "box", func(ctx context.Context) error {
		var err error
		raw, err = s.ledger.Box(ctx, id.AppID, name)
		return err
	})
	return raw, err
}
