// Package simulated is an in-process ledger that runs the registry
// application's rules against signed groups. It is used by tests and by
// local development when no node is available.
package simulated

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"algodid/internal/box"
	"algodid/internal/registry/ports"
	"algodid/internal/txn"
	dErrors "algodid/pkg/domain-errors"
	"algodid/pkg/platform/sentinel"
)

const (
	// AccountMinBalance is the reserve every account holds before boxes.
	AccountMinBalance = 100_000

	genesisID   = "simnet-v1"
	minFee      = 1000
	validWindow = 1000
)

var genesisHash = [32]byte{'s', 'i', 'm', 'n', 'e', 't'}

// Ledger implements ports.Ledger in memory. Each accepted group is confirmed
// in its own round.
type Ledger struct {
	mu        sync.Mutex
	round     uint64
	apps      map[uint64]*application
	confirmed map[string]uint64
	logger    *slog.Logger
}

type application struct {
	balance uint64
	members map[types.Address]bool
	boxes   map[string][]byte
}

func (a *application) clone() *application {
	c := &application{
		balance: a.balance,
		members: make(map[types.Address]bool, len(a.members)),
		boxes:   make(map[string][]byte, len(a.boxes)),
	}
	for k, v := range a.members {
		c.members[k] = v
	}
	for k, v := range a.boxes {
		c.boxes[k] = v
	}
	return c
}

func (a *application) minBalance() uint64 {
	total := int64(AccountMinBalance)
	for _, v := range a.boxes {
		total += box.MinBalance(uint32(len(v)))
	}
	return uint64(total)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithApplications deploys the given applications at creation.
func WithApplications(appIDs ...uint64) Option {
	return func(l *Ledger) {
		for _, id := range appIDs {
			l.deploy(id)
		}
	}
}

// New creates an empty simulated ledger at round 1.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		round:     1,
		apps:      make(map[uint64]*application),
		confirmed: make(map[string]uint64),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ ports.Ledger = (*Ledger)(nil)

// Deploy creates the registry application appID, funded with the account
// minimum balance. Deploying an existing application is a no-op.
func (l *Ledger) Deploy(appID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deploy(appID)
}

func (l *Ledger) deploy(appID uint64) {
	if _, ok := l.apps[appID]; ok {
		return
	}
	l.apps[appID] = &application{
		balance: AccountMinBalance,
		members: make(map[types.Address]bool),
		boxes:   make(map[string][]byte),
	}
}

// Round returns the last confirmed round.
func (l *Ledger) Round() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.round
}

// Balance returns the balance of an application account.
func (l *Ledger) Balance(appID uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if app, ok := l.apps[appID]; ok {
		return app.balance
	}
	return 0
}

// PutBox overwrites a box outside of any transaction.
func (l *Ledger) PutBox(appID uint64, name, value []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deploy(appID)
	l.apps[appID].boxes[string(name)] = bytes.Clone(value)
}

// Health always succeeds.
func (l *Ledger) Health(context.Context) error {
	return nil
}

// SuggestedParams returns parameters valid from the next round.
func (l *Ledger) SuggestedParams(ctx context.Context) (types.SuggestedParams, error) {
	if err := ctx.Err(); err != nil {
		return types.SuggestedParams{}, dErrors.Wrap(err, dErrors.CodeNetwork, "suggested params")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return types.SuggestedParams{
		MinFee:          minFee,
		FirstRoundValid: types.Round(l.round + 1),
		LastRoundValid:  types.Round(l.round + validWindow),
		GenesisID:       genesisID,
		GenesisHash:     genesisHash[:],
	}, nil
}

// Box returns a copy of the box value.
func (l *Ledger) Box(ctx context.Context, appID uint64, name []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNetwork, "read box")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	app, ok := l.apps[appID]
	if !ok {
		return nil, fmt.Errorf("application %d: %w", appID, sentinel.ErrNotFound)
	}
	v, ok := app.boxes[string(name)]
	if !ok {
		return nil, fmt.Errorf("box %x: %w", name, sentinel.ErrNotFound)
	}
	return bytes.Clone(v), nil
}

// Submit applies the group atomically and confirms it in the next round.
func (l *Ledger) Submit(ctx context.Context, group *txn.SignedGroup) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeNetwork, "submit")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.apply(group); err != nil {
		l.logger.DebugContext(ctx, "simulated ledger rejected group", "error", err)
		return "", err
	}
	l.round++
	for _, t := range group.Txns {
		l.confirmed[t.TxID] = l.round
	}
	l.logger.DebugContext(ctx, "simulated ledger confirmed group",
		"round", l.round,
		"transactions", len(group.Txns),
	)
	return group.Txns[0].TxID, nil
}

// WaitForConfirmation returns immediately: accepted groups are already confirmed.
func (l *Ledger) WaitForConfirmation(ctx context.Context, txID string, _ uint64) (*ports.Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	round, ok := l.confirmed[txID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeRejected, "transaction %s is not known to the ledger", txID)
	}
	return &ports.Confirmation{TxID: txID, Round: round}, nil
}

// upload is an in-progress box write assembled from chunk calls.
type upload struct {
	name    string
	buf     []byte
	written uint32
}

func (l *Ledger) apply(group *txn.SignedGroup) error {
	n := len(group.Txns)
	if n == 0 {
		return dErrors.New(dErrors.CodeRejected, "empty transaction group")
	}
	if n > box.MaxGroupSize {
		return dErrors.Newf(dErrors.CodeRejected, "group of %d transactions exceeds %d", n, box.MaxGroupSize)
	}

	txs := make([]types.Transaction, n)
	for i, st := range group.Txns {
		t, err := l.verify(st)
		if err != nil {
			return err
		}
		txs[i] = t
	}
	if err := checkGroupID(txs); err != nil {
		return err
	}

	var (
		appID  uint64
		staged *application
	)
	for _, t := range txs {
		if t.Type != types.ApplicationCallTx {
			continue
		}
		id := uint64(t.ApplicationID)
		if staged == nil {
			app, ok := l.apps[id]
			if !ok {
				return dErrors.Newf(dErrors.CodeRejected, "application %d does not exist", id)
			}
			appID, staged = id, app.clone()
		} else if id != appID {
			return dErrors.New(dErrors.CodeRejected, "group calls more than one application")
		}
	}
	if staged == nil {
		return dErrors.New(dErrors.CodeRejected, "group calls no application")
	}
	before := l.apps[appID]
	appAddr := crypto.GetApplicationAddress(appID)

	var (
		pending *upload
		touched = map[string]bool{}
		refs    = map[string]int{}
	)
	for i, t := range txs {
		switch t.Type {
		case types.PaymentTx:
			if t.Receiver == appAddr {
				staged.balance += uint64(t.Amount)
			}
			continue
		case types.ApplicationCallTx:
		default:
			return dErrors.Newf(dErrors.CodeRejected, "transaction %d: unsupported type %s", i, t.Type)
		}

		for _, r := range txn.DeclaredBoxes(t) {
			if r.AppID == appID {
				refs[string(r.Name)]++
			}
		}

		switch t.OnCompletion {
		case types.OptInOC:
			if txn.Method(t.ApplicationArgs) != txn.SigRegister {
				return dErrors.Newf(dErrors.CodeRejected, "transaction %d: opt-in must call register", i)
			}
			if staged.members[t.Sender] {
				return dErrors.Newf(dErrors.CodeRejected, "account %s is already registered", t.Sender)
			}
			staged.members[t.Sender] = true
			continue
		case types.NoOpOC:
		default:
			return dErrors.Newf(dErrors.CodeRejected, "transaction %d: unsupported on-completion %d", i, t.OnCompletion)
		}

		switch txn.Method(t.ApplicationArgs) {
		case txn.SigReserve:
		case txn.SigUpload:
			args, err := txn.DecodeUpload(t.ApplicationArgs)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeRejected, fmt.Sprintf("transaction %d", i))
			}
			if err := authorize(staged, t, args.Subject, i); err != nil {
				return err
			}
			name := string(args.Subject)
			touched[name] = true
			if args.Offset == 0 {
				if pending != nil {
					return dErrors.New(dErrors.CodeRejected, "group starts a second upload")
				}
				if err := checkPrior(before, name, args.Prior); err != nil {
					return err
				}
				if args.Total == 0 || args.Total > box.MaxBoxSize {
					return dErrors.Newf(dErrors.CodeRejected, "box size %d out of range", args.Total)
				}
				pending = &upload{name: name, buf: make([]byte, args.Total)}
			}
			if pending == nil || pending.name != name || uint32(len(pending.buf)) != args.Total || args.Offset != pending.written {
				return dErrors.Newf(dErrors.CodeRejected, "transaction %d: chunk at offset %d is out of sequence", i, args.Offset)
			}
			if uint64(args.Offset)+uint64(len(args.Chunk)) > uint64(args.Total) {
				return dErrors.Newf(dErrors.CodeRejected, "transaction %d: chunk overruns box", i)
			}
			copy(pending.buf[args.Offset:], args.Chunk)
			pending.written += uint32(len(args.Chunk))
			if refs[name] == 0 {
				return dErrors.Newf(dErrors.CodeBoxReferenceMissing, "invalid Box reference %x", args.Subject)
			}
		case txn.SigDelete:
			args, err := txn.DecodeDelete(t.ApplicationArgs)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeRejected, fmt.Sprintf("transaction %d", i))
			}
			if err := authorize(staged, t, args.Subject, i); err != nil {
				return err
			}
			name := string(args.Subject)
			touched[name] = true
			if refs[name] == 0 {
				return dErrors.Newf(dErrors.CodeBoxReferenceMissing, "invalid Box reference %x", args.Subject)
			}
			if _, ok := staged.boxes[name]; !ok {
				return dErrors.New(dErrors.CodeRejected, "box does not exist")
			}
			if err := checkPrior(before, name, args.Prior); err != nil {
				return err
			}
			delete(staged.boxes, name)
		default:
			return dErrors.Newf(dErrors.CodeRejected, "transaction %d: unknown method selector", i)
		}
	}

	if pending != nil {
		if pending.written != uint32(len(pending.buf)) {
			return dErrors.Newf(dErrors.CodeRejected, "upload wrote %d of %d bytes", pending.written, len(pending.buf))
		}
		staged.boxes[pending.name] = pending.buf
	}

	for name := range touched {
		io := max(len(before.boxes[name]), len(staged.boxes[name]))
		if refs[name]*box.IOBudgetPerReference < io {
			return dErrors.Newf(dErrors.CodeBoxReferenceMissing,
				"box read budget exceeded: %d references for %d bytes", refs[name], io)
		}
	}

	if need := staged.minBalance(); staged.balance < need {
		return dErrors.Newf(dErrors.CodeInsufficientBalance,
			"balance %d below min %d", staged.balance, need)
	}

	l.apps[appID] = staged
	return nil
}

// verify decodes a signed transaction and checks its signature, id, fee and
// validity window.
func (l *Ledger) verify(st txn.SignedTxn) (types.Transaction, error) {
	var stx types.SignedTxn
	if err := msgpack.Decode(st.Blob, &stx); err != nil {
		return types.Transaction{}, dErrors.Wrap(err, dErrors.CodeRejected, "undecodable signed transaction")
	}
	t := stx.Txn
	if crypto.GetTxID(t) != st.TxID {
		return types.Transaction{}, dErrors.Newf(dErrors.CodeRejected, "transaction id mismatch for %s", st.TxID)
	}
	msg := append([]byte("TX"), msgpack.Encode(t)...)
	if !ed25519.Verify(ed25519.PublicKey(t.Sender[:]), msg, stx.Sig[:]) {
		return types.Transaction{}, dErrors.Newf(dErrors.CodeRejected, "invalid signature on %s", st.TxID)
	}
	if uint64(t.Fee) < minFee {
		return types.Transaction{}, dErrors.Newf(dErrors.CodeRejected, "fee %d below minimum %d", t.Fee, minFee)
	}
	next := types.Round(l.round + 1)
	if next < t.FirstValid || next > t.LastValid {
		return types.Transaction{}, dErrors.Newf(dErrors.CodeRejected, "txn dead: round %d outside [%d, %d]", next, t.FirstValid, t.LastValid)
	}
	if _, seen := l.confirmed[st.TxID]; seen {
		return types.Transaction{}, dErrors.Newf(dErrors.CodeRejected, "transaction already in ledger: %s", st.TxID)
	}
	return t, nil
}

func checkGroupID(txs []types.Transaction) error {
	if len(txs) == 1 && txs[0].Group == (types.Digest{}) {
		return nil
	}
	unset := make([]types.Transaction, len(txs))
	for i, t := range txs {
		t.Group = types.Digest{}
		unset[i] = t
	}
	gid, err := crypto.ComputeGroupID(unset)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeRejected, "compute group id")
	}
	for i, t := range txs {
		if t.Group != gid {
			return dErrors.Newf(dErrors.CodeRejected, "transaction %d: incomplete group", i)
		}
	}
	return nil
}

// authorize lets only a registered account write its own box.
func authorize(app *application, t types.Transaction, subject []byte, i int) error {
	if !bytes.Equal(subject, t.Sender[:]) {
		return dErrors.Newf(dErrors.CodeRejected, "transaction %d: sender may only write its own box", i)
	}
	if !app.members[t.Sender] {
		return dErrors.Newf(dErrors.CodeRejected, "account %s has not registered", t.Sender)
	}
	return nil
}

func checkPrior(app *application, name string, prior box.Digest) error {
	var current box.Digest
	if v, ok := app.boxes[name]; ok {
		current = box.DigestOf(v)
	}
	if current != prior {
		return dErrors.New(dErrors.CodeRejected, "box changed since the write was built")
	}
	return nil
}
