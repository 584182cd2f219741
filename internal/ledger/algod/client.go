// Package algod adapts an algod REST endpoint to the registry's Ledger port.
package algod

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"algodid/internal/registry/ports"
	"algodid/internal/txn"
	dErrors "algodid/pkg/domain-errors"
	"algodid/pkg/platform/sentinel"
)

// Client talks to one algod node.
type Client struct {
	algod  *algod.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTracer overrides the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// New creates a client for the node at address authenticated with token.
func New(address, token string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, fmt.Errorf("algod address required")
	}
	ac, err := algod.MakeClient(address, token)
	if err != nil {
		return nil, fmt.Errorf("create algod client: %w", err)
	}
	c := &Client{
		algod:  ac,
		logger: slog.Default(),
		tracer: otel.Tracer("algodid/internal/ledger/algod"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ ports.Ledger = (*Client)(nil)

func (c *Client) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := c.tracer.Start(ctx, "algod."+name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attrs...)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// SuggestedParams fetches current transaction parameters.
func (c *Client) SuggestedParams(ctx context.Context) (sp types.SuggestedParams, err error) {
	ctx, end := c.span(ctx, "SuggestedParams")
	defer func() { end(err) }()

	sp, err = c.algod.SuggestedParams().Do(ctx)
	if err != nil {
		return types.SuggestedParams{}, classifyRead(err, "suggested params")
	}
	return sp, nil
}

// Box fetches a box value. A missing box is sentinel.ErrNotFound.
func (c *Client) Box(ctx context.Context, appID uint64, name []byte) (value []byte, err error) {
	ctx, end := c.span(ctx, "Box", attribute.Int64("app_id", int64(appID)))
	defer func() { end(err) }()

	b, err := c.algod.GetApplicationBoxByName(appID, name).Do(ctx)
	if err != nil {
		return nil, classifyRead(err, fmt.Sprintf("box %x of application %d", name, appID))
	}
	return b.Value, nil
}

// Submit sends the signed group as one request.
func (c *Client) Submit(ctx context.Context, group *txn.SignedGroup) (txID string, err error) {
	ctx, end := c.span(ctx, "Submit",
		attribute.Int64("app_id", int64(group.AppID)),
		attribute.Int("transactions", len(group.Txns)),
	)
	defer func() { end(err) }()

	txID, err = c.algod.SendRawTransaction(group.Bytes()).Do(ctx)
	if err != nil {
		return "", classifySubmit(err)
	}
	return txID, nil
}

// WaitForConfirmation polls the pending pool until txID is confirmed, is
// dropped with a pool error, or maxRounds rounds pass.
func (c *Client) WaitForConfirmation(ctx context.Context, txID string, maxRounds uint64) (conf *ports.Confirmation, err error) {
	ctx, end := c.span(ctx, "WaitForConfirmation", attribute.String("tx_id", txID))
	defer func() { end(err) }()

	status, err := c.algod.Status().Do(ctx)
	if err != nil {
		return nil, classifyRead(err, "node status")
	}
	round := status.LastRound
	last := round + maxRounds

	for {
		info, _, err := c.algod.PendingTransactionInformation(txID).Do(ctx)
		if err != nil {
			err = classifyRead(err, "pending transaction "+txID)
			if errors.Is(err, sentinel.ErrNotFound) {
				// unknown to the pool and not confirmed: it will never apply
				return nil, dErrors.Wrap(err, dErrors.CodeRejected,
					"transaction "+txID+" is unknown to the node")
			}
			return nil, err
		}
		if info.ConfirmedRound > 0 {
			return &ports.Confirmation{TxID: txID, Round: info.ConfirmedRound}, nil
		}
		if info.PoolError != "" {
			return nil, dErrors.Wrap(fmt.Errorf("%s", info.PoolError), dErrors.CodeRejected,
				"transaction "+txID+" was dropped from the pool")
		}
		if round >= last {
			return nil, dErrors.Newf(dErrors.CodeConfirmationTimeout,
				"transaction %s not confirmed after %d rounds", txID, maxRounds)
		}

		status, err = c.algod.StatusAfterBlock(round).Do(ctx)
		if err != nil {
			return nil, classifyRead(err, "wait for block")
		}
		c.logger.DebugContext(ctx, "waiting for confirmation", "tx_id", txID, "round", status.LastRound)
		round = max(status.LastRound, round+1)
	}
}

// Health reports whether the node answers and is caught up.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status, err := c.algod.Status().Do(ctx)
	if err != nil {
		return classifyRead(err, "node status")
	}
	if status.CatchupTime > 0 {
		return dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeNetwork,
			fmt.Sprintf("node is catching up (round %d)", status.LastRound))
	}
	return nil
}
