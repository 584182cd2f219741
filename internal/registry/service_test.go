package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"algodid/internal/box"
	"algodid/internal/credential"
	"algodid/internal/did"
	"algodid/internal/registry/mocks"
	"algodid/internal/registry/ports"
	"algodid/internal/txn"
	dErrors "algodid/pkg/domain-errors"
	audit "algodid/pkg/platform/audit"
	"algodid/pkg/platform/sentinel"
)

const testAppID = 1234

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	ctrl      *gomock.Controller
	ledger    *mocks.MockLedger
	publisher *mocks.MockAuditPublisher
	service   *Service
	account   crypto.Account
	did       did.Identifier
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.ledger = mocks.NewMockLedger(s.ctrl)
	s.publisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.service = NewService(s.ledger,
		WithAuditPublisher(s.publisher),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithReadRetry(3, time.Millisecond),
		WithConfirmation(5, time.Second),
	)
	s.account = crypto.GenerateAccount()
	id, err := did.New(s.account.Address, testAppID)
	s.Require().NoError(err)
	s.did = id
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) credential() *credential.Credential {
	sk := make([]byte, len(s.account.PrivateKey))
	copy(sk, s.account.PrivateKey)
	cred, err := credential.FromPrivateKey(sk)
	s.Require().NoError(err)
	return cred
}

func suggested() types.SuggestedParams {
	return types.SuggestedParams{
		MinFee:          1000,
		FirstRoundValid: 10,
		LastRoundValid:  1010,
		GenesisID:       "testnet-v1.0",
		GenesisHash:     make([]byte, 32),
	}
}

func (s *ServiceSuite) expectConfirmed(round uint64) *gomock.Call {
	s.ledger.EXPECT().SuggestedParams(gomock.Any()).Return(suggested(), nil)
	s.ledger.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, g *txn.SignedGroup) (string, error) {
			return g.Txns[0].TxID, nil
		})
	return s.ledger.EXPECT().WaitForConfirmation(gomock.Any(), gomock.Any(), uint64(5)).DoAndReturn(
		func(_ context.Context, txID string, _ uint64) (*ports.Confirmation, error) {
			return &ports.Confirmation{TxID: txID, Round: round}, nil
		})
}

func (s *ServiceSuite) TestCreateDID() {
	s.Run("registers the account and returns its identifier", func() {
		cred := s.credential()
		s.expectConfirmed(21)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e audit.Event) error {
				s.Equal(string(audit.EventDIDCreated), e.Action)
				s.Equal(s.did.String(), e.DID)
				s.Equal(uint64(21), e.Round)
				return nil
			})

		res, err := s.service.CreateDID(s.ctx, cred, testAppID)
		s.Require().NoError(err)
		s.Equal(s.did, res.DID)
		s.Equal(uint64(21), res.Round)
		s.NotEmpty(res.TxID)
		s.True(cred.Wiped())
	})

	s.Run("rejects app id zero before touching the ledger", func() {
		cred := s.credential()
		_, err := s.service.CreateDID(s.ctx, cred, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidAppID))
		s.True(cred.Wiped())
	})

	s.Run("audit failure does not fail a confirmed write", func() {
		s.expectConfirmed(22)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("audit down"))

		_, err := s.service.CreateDID(s.ctx, s.credential(), testAppID)
		s.NoError(err)
	})
}

func (s *ServiceSuite) TestUploadDocument() {
	s.Run("funds a new box and reports the group", func() {
		s.ledger.EXPECT().Box(gomock.Any(), uint64(testAppID), s.account.Address[:]).
			Return(nil, fmt.Errorf("box: %w", sentinel.ErrNotFound))
		s.expectConfirmed(30)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		res, err := s.service.UploadDocument(s.ctx, s.did.String(), []byte(`{ "b": 1, "a": [] }`), s.credential())
		s.Require().NoError(err)
		s.Equal(uint64(box.MinBalance(uint32(len(`{"a":[],"b":1}`)))), res.Funding)
		s.Len(res.TxIDs, 2)
		s.Equal(res.TxIDs[1], res.TxID)
		s.Equal(uint64(30), res.Round)
	})

	s.Run("malformed identifier makes no ledger call", func() {
		cred := s.credential()
		_, err := s.service.UploadDocument(s.ctx, "did:algo:nope", []byte(`{}`), cred)
		s.True(dErrors.HasCode(err, dErrors.CodeMalformedIdentifier))
		s.True(cred.Wiped())
	})

	s.Run("foreign signer is refused before touching the ledger", func() {
		other := crypto.GenerateAccount()
		cred, err := credential.FromPrivateKey(other.PrivateKey)
		s.Require().NoError(err)

		_, err = s.service.UploadDocument(s.ctx, s.did.String(), []byte(`{}`), cred)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidAddress), "got %v", err)
		s.True(cred.Wiped())
	})

	s.Run("non-object payload is a bad request", func() {
		_, err := s.service.UploadDocument(s.ctx, s.did.String(), []byte(`[1,2]`), s.credential())
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("refused submission is not retried and is audited", func() {
		s.ledger.EXPECT().Box(gomock.Any(), gomock.Any(), gomock.Any()).Return([]byte(`{"a":1}`), nil)
		s.ledger.EXPECT().SuggestedParams(gomock.Any()).Return(suggested(), nil)
		s.ledger.EXPECT().Submit(gomock.Any(), gomock.Any()).
			Return("", dErrors.New(dErrors.CodeRejected, "logic eval error")).Times(1)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e audit.Event) error {
				s.Equal(string(audit.EventWriteRejected), e.Action)
				s.Equal(string(dErrors.CodeRejected), e.Reason)
				return nil
			})

		_, err := s.service.UpdateDocument(s.ctx, s.did.String(), []byte(`{"a":2}`), s.credential())
		s.True(dErrors.HasCode(err, dErrors.CodeRejected))
	})

	s.Run("confirmation deadline maps to timeout", func() {
		s.ledger.EXPECT().Box(gomock.Any(), gomock.Any(), gomock.Any()).Return([]byte(`{"a":1}`), nil)
		s.ledger.EXPECT().SuggestedParams(gomock.Any()).Return(suggested(), nil)
		s.ledger.EXPECT().Submit(gomock.Any(), gomock.Any()).Return("TX", nil)
		s.ledger.EXPECT().WaitForConfirmation(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, context.DeadlineExceeded)

		_, err := s.service.UpdateDocument(s.ctx, s.did.String(), []byte(`{"a":2}`), s.credential())
		s.True(dErrors.HasCode(err, dErrors.CodeConfirmationTimeout))
	})
}

func (s *ServiceSuite) TestDeleteDocument() {
	s.Run("absent box is not found", func() {
		s.ledger.EXPECT().Box(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.DeleteDocument(s.ctx, s.did.String(), s.credential())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("foreign signer is refused before touching the ledger", func() {
		other := crypto.GenerateAccount()
		cred, err := credential.FromPrivateKey(other.PrivateKey)
		s.Require().NoError(err)

		_, err = s.service.DeleteDocument(s.ctx, s.did.String(), cred)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidAddress), "got %v", err)
	})

	s.Run("deletes with the current digest", func() {
		current := []byte(`{"a":1}`)
		s.ledger.EXPECT().Box(gomock.Any(), gomock.Any(), gomock.Any()).Return(current, nil)
		s.ledger.EXPECT().SuggestedParams(gomock.Any()).Return(suggested(), nil)
		s.ledger.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, g *txn.SignedGroup) (string, error) {
				s.Require().Len(g.Txns, 1)
				args, err := txn.DecodeDelete(g.Txns[0].Txn.ApplicationArgs)
				s.Require().NoError(err)
				s.Equal(box.DigestOf(current), args.Prior)
				return g.Txns[0].TxID, nil
			})
		s.ledger.EXPECT().WaitForConfirmation(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&ports.Confirmation{TxID: "T", Round: 40}, nil)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		res, err := s.service.DeleteDocument(s.ctx, s.did.String(), s.credential())
		s.Require().NoError(err)
		s.Zero(res.Funding)
		s.Equal(uint64(40), res.Round)
	})
}

func (s *ServiceSuite) TestResolve() {
	s.Run("decodes the box", func() {
		s.ledger.EXPECT().Box(gomock.Any(), uint64(testAppID), s.account.Address[:]).
			Return([]byte(`{"id":"x","service":[]}`), nil)

		res, err := s.service.Resolve(s.ctx, s.did.String())
		s.Require().NoError(err)
		s.Equal("x", res.Document.ID())
		s.Equal(s.did, res.DID)
	})

	s.Run("missing box is not found", func() {
		s.ledger.EXPECT().Box(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.Resolve(s.ctx, s.did.String())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("garbage box is invalid contents", func() {
		s.ledger.EXPECT().Box(gomock.Any(), gomock.Any(), gomock.Any()).Return([]byte{0xff, 0x00}, nil)

		_, err := s.service.Resolve(s.ctx, s.did.String())
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidBoxContents))
	})

	s.Run("network errors are retried", func() {
		netErr := dErrors.New(dErrors.CodeNetwork, "connection reset")
		gomock.InOrder(
			s.ledger.EXPECT().Box(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, netErr),
			s.ledger.EXPECT().Box(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, netErr),
			s.ledger.EXPECT().Box(gomock.Any(), gomock.Any(), gomock.Any()).Return([]byte(`{}`), nil),
		)

		_, err := s.service.Resolve(s.ctx, s.did.String())
		s.NoError(err)
	})

	s.Run("retries are bounded", func() {
		netErr := dErrors.New(dErrors.CodeNetwork, "connection reset")
		s.ledger.EXPECT().Box(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, netErr).Times(3)

		_, err := s.service.Resolve(s.ctx, s.did.String())
		s.True(dErrors.HasCode(err, dErrors.CodeNetwork))
	})
}
