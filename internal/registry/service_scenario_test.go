package registry

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algodid/internal/credential"
	"algodid/internal/ledger/simulated"
	"algodid/internal/txn"
	dErrors "algodid/pkg/domain-errors"
	"algodid/pkg/platform/audit/publisher"
	auditmemory "algodid/pkg/platform/audit/store/memory"
)

func newCredential(t *testing.T, acct crypto.Account) *credential.Credential {
	t.Helper()
	sk := make([]byte, len(acct.PrivateKey))
	copy(sk, acct.PrivateKey)
	cred, err := credential.FromPrivateKey(sk)
	require.NoError(t, err)
	return cred
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	ledger := simulated.New(simulated.WithApplications(testAppID))
	store := auditmemory.NewInMemoryStore()
	pub := publisher.NewPublisher(store)
	svc := NewService(ledger, WithAuditPublisher(pub), WithLogger(quietLogger()))
	acct := crypto.GenerateAccount()

	created, err := svc.CreateDID(ctx, newCredential(t, acct), testAppID)
	require.NoError(t, err)
	id := created.DID.String()

	_, err = svc.Resolve(ctx, id)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound), "resolve before upload: %v", err)

	uploaded, err := svc.UploadDocument(ctx, id, []byte(`{"service":[]}`), newCredential(t, acct))
	require.NoError(t, err)
	assert.Positive(t, uploaded.Funding)

	res, err := svc.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"service":[]}`), res.Raw)

	updated, err := svc.UpdateDocument(ctx, id, []byte(`{"service":[{"id":"#hub","type":"LinkedDomains"}]}`), newCredential(t, acct))
	require.NoError(t, err)
	assert.Greater(t, updated.Round, uploaded.Round)

	res, err = svc.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": "#hub", "type": "LinkedDomains"}}, res.Document["service"])

	_, err = svc.DeleteDocument(ctx, id, newCredential(t, acct))
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, id)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	events, err := pub.List(ctx, id)
	require.NoError(t, err)
	var actions []string
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"did_created", "document_uploaded", "document_updated", "document_deleted"}, actions)
}

func TestLargeDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	ledger := simulated.New(simulated.WithApplications(testAppID))
	svc := NewService(ledger, WithLogger(quietLogger()))
	acct := crypto.GenerateAccount()

	created, err := svc.CreateDID(ctx, newCredential(t, acct), testAppID)
	require.NoError(t, err)

	services := make([]string, 0, 600)
	for range 600 {
		services = append(services, `{"id":"#svc","type":"DIDCommMessaging"}`)
	}
	payload := []byte(`{"service":[` + strings.Join(services, ",") + `]}`)
	require.Greater(t, len(payload), 20000)

	res, err := svc.UploadDocument(ctx, created.DID.String(), payload, newCredential(t, acct))
	require.NoError(t, err)
	assert.Greater(t, len(res.TxIDs), 10)

	got, err := svc.Resolve(ctx, created.DID.String())
	require.NoError(t, err)
	assert.Len(t, got.Document["service"], 600)
}

// gatedLedger holds every submission until all expected writers have
// built their groups, so they race against the same box state.
type gatedLedger struct {
	*simulated.Ledger
	arrived sync.WaitGroup
}

func (g *gatedLedger) Submit(ctx context.Context, group *txn.SignedGroup) (string, error) {
	g.arrived.Done()
	g.arrived.Wait()
	return g.Ledger.Submit(ctx, group)
}

func TestConcurrentUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	base := simulated.New(simulated.WithApplications(testAppID))
	setup := NewService(base, WithLogger(quietLogger()))
	acct := crypto.GenerateAccount()

	created, err := setup.CreateDID(ctx, newCredential(t, acct), testAppID)
	require.NoError(t, err)
	id := created.DID.String()
	_, err = setup.UploadDocument(ctx, id, []byte(`{"v":0}`), newCredential(t, acct))
	require.NoError(t, err)

	gated := &gatedLedger{Ledger: base}
	gated.arrived.Add(2)
	svc := NewService(gated, WithLogger(quietLogger()))

	updater, deleter := newCredential(t, acct), newCredential(t, acct)
	var (
		wg        sync.WaitGroup
		updateErr error
		deleteErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, updateErr = svc.UpdateDocument(ctx, id, []byte(`{"v":1}`), updater)
	}()
	go func() {
		defer wg.Done()
		_, deleteErr = svc.DeleteDocument(ctx, id, deleter)
	}()
	wg.Wait()

	if updateErr == nil {
		require.Error(t, deleteErr)
		assert.True(t, dErrors.HasCode(deleteErr, dErrors.CodeRejected))
		res, err := setup.Resolve(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"v":1}`), res.Raw)
		return
	}
	require.NoError(t, deleteErr)
	assert.True(t, dErrors.HasCode(updateErr, dErrors.CodeRejected))
	_, err = setup.Resolve(ctx, id)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestCredentialWipedOnFailure(t *testing.T) {
	ledger := simulated.New(simulated.WithApplications(testAppID))
	svc := NewService(ledger, WithLogger(quietLogger()))
	acct := crypto.GenerateAccount()
	cred := newCredential(t, acct)

	// Not registered: the application refuses the upload.
	id := "did:algo:" + acct.Address.String() + "-1234"
	_, err := svc.UploadDocument(context.Background(), id, []byte(`{}`), cred)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRejected))
	assert.True(t, cred.Wiped())
}
