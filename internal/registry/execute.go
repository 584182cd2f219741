package registry

import (
	"context"
	"errors"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"algodid/internal/did"
	"algodid/internal/registry/ports"
	"algodid/internal/txn"
	dErrors "algodid/pkg/domain-errors"
	audit "algodid/pkg/platform/audit"
	"algodid/pkg/requestcontext"
)

var auditActions = map[Operation]audit.AuditEvent{
	OpCreateDID:      audit.EventDIDCreated,
	OpUploadDocument: audit.EventDocumentUpload,
	OpUpdateDocument: audit.EventDocumentUpdate,
	OpDeleteDocument: audit.EventDocumentDeleted,
}

// begin opens a span for op and returns the function that closes it with
// the operation's outcome.
func (s *Service) begin(ctx context.Context, op Operation, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "registry."+string(op))
	span.SetAttributes(attrs...)
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = string(dErrors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		s.metrics.ObserveOperation(string(op), outcome, s.now().Sub(start))
		span.End()
	}
}

// execute signs, submits and confirms group. The credential is wiped right
// after signing. A submitted write is never retried: its outcome may be
// unknown and resubmitting could apply it twice.
func (s *Service) execute(ctx context.Context, op Operation, id did.Identifier, group txn.Group, cred Credential) (*ports.Confirmation, *txn.SignedGroup, error) {
	logger := s.logger.With(
		"operation", op,
		"did", id.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	logger.DebugContext(ctx, "transaction group built",
		"kind", group.Kind,
		"transactions", len(group.Txns),
		"funding", group.Funding,
	)

	signed, err := group.Sign(cred)
	cred.Wipe()
	if err != nil {
		logger.ErrorContext(ctx, "signing failed", "error", err)
		return nil, nil, err
	}
	logger.DebugContext(ctx, "transaction group signed", "call_tx_id", signed.CallTxID())

	if _, err := s.ledger.Submit(ctx, signed); err != nil {
		logger.WarnContext(ctx, "submission refused", "error", err, "code", dErrors.CodeOf(err))
		s.emitRejected(ctx, id, signed, err)
		return nil, nil, err
	}
	txID := signed.CallTxID()
	logger.InfoContext(ctx, "transaction group submitted", "tx_id", txID, "funding", signed.Funding)

	waitCtx, cancel := context.WithTimeout(ctx, s.confirmationTimeout)
	defer cancel()
	submitted := s.now()
	conf, err := s.ledger.WaitForConfirmation(waitCtx, txID, s.confirmationRounds)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = dErrors.Wrap(err, dErrors.CodeConfirmationTimeout,
				"gave up waiting for "+txID+"; the write may still confirm")
		}
		logger.WarnContext(ctx, "confirmation failed", "tx_id", txID, "error", err, "code", dErrors.CodeOf(err))
		if dErrors.HasCode(err, dErrors.CodeRejected) {
			s.emitRejected(ctx, id, signed, err)
		}
		return nil, nil, err
	}
	s.metrics.ObserveConfirmation(s.now().Sub(submitted))
	s.metrics.AddFunding(signed.Funding)
	logger.InfoContext(ctx, "transaction group confirmed", "tx_id", conf.TxID, "round", conf.Round)

	s.emit(ctx, audit.Event{
		Action:    string(auditActions[op]),
		DID:       id.String(),
		AppID:     id.AppID,
		Sender:    cred.Address().String(),
		TxID:      conf.TxID,
		Round:     conf.Round,
		Funding:   signed.Funding,
		RequestID: requestcontext.RequestID(ctx),
	})
	return conf, signed, nil
}

func (s *Service) emitRejected(ctx context.Context, id did.Identifier, signed *txn.SignedGroup, cause error) {
	s.emit(ctx, audit.Event{
		Action:    string(audit.EventWriteRejected),
		DID:       id.String(),
		AppID:     id.AppID,
		TxID:      signed.CallTxID(),
		RequestID: requestcontext.RequestID(ctx),
		Reason:    string(dErrors.CodeOf(cause)),
	})
}

// emit records an audit event. Audit failures never fail a write that the
// ledger already confirmed.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"did", event.DID,
			"error", err,
		)
	}
}

func (s *Service) suggestedParams(ctx context.Context) (sp types.SuggestedParams, err error) {
	err = s.retryRead(ctx, "suggested_params", func(ctx context.Context) error {
		var err error
		sp, err = s.ledger.SuggestedParams(ctx)
		return err
	})
	return sp, err
}

// retryRead retries fn while it fails with a network error. Only read-only
// calls go through here.
func (s *Service) retryRead(ctx context.Context, call string, fn func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.readBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(b, s.readAttempts-1), ctx)

	op := func() error {
		err := fn(ctx)
		if err == nil || dErrors.HasCode(err, dErrors.CodeNetwork) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		s.metrics.IncrementReadRetry(call)
		s.logger.DebugContext(ctx, "retrying ledger read", "call", call, "wait", wait, "error", err)
	}
	return backoff.RetryNotify(op, policy, notify)
}
