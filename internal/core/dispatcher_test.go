package core_test

import (
	"context"
	"errors"
	"testing"

	"TokenLedger/internal/core"
	"TokenLedger/internal/event"
	"TokenLedger/internal/ledger"
	"TokenLedger/internal/observability"
	"TokenLedger/internal/testutil"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var minter = testutil.Addr(0x1)

// fakeDBChecker stands in for the event-log lookup.
type fakeDBChecker struct {
	keys  map[string]bool
	err   error
	calls int
}

func (f *fakeDBChecker) IsDuplicate(key string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.keys[key], nil
}

func newDispatcher(h *harness, db core.DBIdempotencyChecker) *core.Dispatcher {
	checker := core.NewIdempotencyChecker(16, db, h.metrics, zerolog.Nop())
	return core.NewDispatcher(h.transfers, h.supply, checker, core.NewMinterSet(minter))
}

func TestDispatcher_AppliesCommands(t *testing.T) {
	h := newHarness(t)
	d := newDispatcher(h, nil)

	_, err := d.Process(&core.MintCommand{Key: "m1", Operator: minter, To: accA, Amount: amt(100)})
	require.NoError(t, err)
	_, err = d.Process(&core.ApproveCommand{Key: "a1", Owner: accA, Spender: accB, Amount: amt(30)})
	require.NoError(t, err)
	_, err = d.Process(&core.TransferFromCommand{Key: "tf1", Spender: accB, Owner: accA, To: accC, Amount: amt(20)})
	require.NoError(t, err)
	_, err = d.Process(&core.TransferCommand{Key: "t1", From: accC, To: accB, Amount: amt(5)})
	require.NoError(t, err)
	env, err := d.Process(&core.BurnCommand{Key: "b1", Operator: minter, From: accA, Amount: amt(80)})
	require.NoError(t, err)

	assert.Equal(t, uint64(5), env.Sequence)
	assert.Equal(t, "b1", env.IdempotencyKey)
	assert.Equal(t, uint64(0), h.balance(t, accA))
	assert.Equal(t, uint64(5), h.balance(t, accB))
	assert.Equal(t, uint64(15), h.balance(t, accC))
	assert.Equal(t, uint64(10), h.allowance(t, accA, accB))
	assert.Equal(t, uint64(20), h.totalSupply(t))
	testutil.AssertConserved(t, h.store)
}

func TestDispatcher_DuplicateFromLRU(t *testing.T) {
	h := newHarness(t)
	d := newDispatcher(h, nil)

	cmd := &core.MintCommand{Key: "m1", Operator: minter, To: accA, Amount: amt(100)}
	_, err := d.Process(cmd)
	require.NoError(t, err)

	_, err = d.Process(cmd)
	assert.ErrorIs(t, err, core.ErrDuplicateCommand)
	assert.Equal(t, uint64(100), h.totalSupply(t))
	assert.Equal(t, 1, h.recorder.Len())
	assert.Equal(t, float64(1), testutil.MetricValue(t, h.metrics.IdempotencyDuplicates.WithLabelValues("mint", "lru")))
}

func TestDispatcher_DuplicateFromEventLog(t *testing.T) {
	h := newHarness(t)
	db := &fakeDBChecker{keys: map[string]bool{"seen": true}}
	d := newDispatcher(h, db)

	_, err := d.Process(&core.MintCommand{Key: "seen", Operator: minter, To: accA, Amount: amt(1)})
	assert.ErrorIs(t, err, core.ErrDuplicateCommand)
	assert.Equal(t, 1, db.calls)

	// The hit is promoted into the LRU; the second lookup stays in memory.
	_, err = d.Process(&core.MintCommand{Key: "seen", Operator: minter, To: accA, Amount: amt(1)})
	assert.ErrorIs(t, err, core.ErrDuplicateCommand)
	assert.Equal(t, 1, db.calls)
	assert.Equal(t, uint64(0), h.totalSupply(t))
}

func TestDispatcher_EventLogErrorIsAMiss(t *testing.T) {
	h := newHarness(t)
	db := &fakeDBChecker{err: errors.New("connection refused")}
	d := newDispatcher(h, db)

	_, err := d.Process(&core.MintCommand{Key: "k", Operator: minter, To: accA, Amount: amt(3)})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), h.totalSupply(t))
	assert.Equal(t, float64(1), testutil.MetricValue(t, h.metrics.DedupTier2Errors))
}

func TestDispatcher_FailedCommandKeepsKey(t *testing.T) {
	h := newHarness(t)
	d := newDispatcher(h, nil)

	cmd := &core.TransferCommand{Key: "retry", From: accA, To: accB, Amount: amt(10)}
	_, err := d.Process(cmd)
	var balErr *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &balErr)

	_, err = d.Process(&core.MintCommand{Key: "fund", Operator: minter, To: accA, Amount: amt(10)})
	require.NoError(t, err)

	_, err = d.Process(cmd)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), h.balance(t, accB))
}

// A restart loses the LRU and, without an event log, has no tier 2. The
// marker committed with the operation still stops a redelivered command.
func TestDispatcher_KeySurvivesRestart(t *testing.T) {
	h := newHarness(t)
	d := newDispatcher(h, nil)

	_, err := d.Process(&core.MintCommand{Key: "m1", Operator: minter, To: accA, Amount: amt(100)})
	require.NoError(t, err)
	transfer := &core.TransferCommand{Key: "t1", From: accA, To: accB, Amount: amt(40)}
	_, err = d.Process(transfer)
	require.NoError(t, err)

	tip, ok, err := ledger.ReadChainTip(h.store)
	require.NoError(t, err)
	require.True(t, ok)

	rec := event.NewRecorder()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	engine := core.NewEngine(h.store, rec, core.ResumeFrom(tip), core.WithMetrics(metrics))
	checker := core.NewIdempotencyChecker(16, nil, metrics, zerolog.Nop())
	restarted := core.NewDispatcher(core.NewTransferEngine(engine), core.NewSupplyController(engine), checker, core.NewMinterSet(minter))

	_, err = restarted.Process(transfer)
	assert.ErrorIs(t, err, core.ErrDuplicateCommand)
	_, err = restarted.Process(transfer)
	assert.ErrorIs(t, err, core.ErrDuplicateCommand)
	assert.Equal(t, float64(1), testutil.MetricValue(t, metrics.IdempotencyDuplicates.WithLabelValues("transfer", "store")))
	assert.Equal(t, float64(1), testutil.MetricValue(t, metrics.IdempotencyDuplicates.WithLabelValues("transfer", "lru")))
	assert.Zero(t, rec.Len())
	assert.Equal(t, uint64(60), h.balance(t, accA))
	assert.Equal(t, uint64(40), h.balance(t, accB))

	env, err := restarted.Process(&core.TransferCommand{Key: "t2", From: accA, To: accB, Amount: amt(1)})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), env.Sequence)
	assert.Equal(t, tip.StateHash, env.PrevHash)
}

func TestDispatcher_EmptyKeyNeverDeduplicated(t *testing.T) {
	h := newHarness(t)
	d := newDispatcher(h, nil)

	cmd := &core.MintCommand{Operator: minter, To: accA, Amount: amt(1)}
	for i := 0; i < 3; i++ {
		_, err := d.Process(cmd)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(3), h.totalSupply(t))
}

func TestDispatcher_RejectsNonMinter(t *testing.T) {
	h := newHarness(t)
	d := newDispatcher(h, nil)

	_, err := d.Process(&core.MintCommand{Key: "m", Operator: accA, To: accA, Amount: amt(1)})
	assert.ErrorIs(t, err, core.ErrNotMinter)

	_, err = d.Process(&core.BurnCommand{Key: "b", Operator: accA, From: accA, Amount: amt(0)})
	assert.ErrorIs(t, err, core.ErrNotMinter)

	assert.Equal(t, uint64(0), h.totalSupply(t))
	assert.Zero(t, h.recorder.Len())
}

func TestMinterSet(t *testing.T) {
	s := core.NewMinterSet(accA, accB)
	assert.True(t, s.Allows(accA))
	assert.False(t, s.Allows(accC))
	assert.NoError(t, s.Authorize(accB))
	assert.ErrorIs(t, s.Authorize(accC), core.ErrNotMinter)
	assert.ErrorIs(t, core.NewMinterSet().Authorize(accA), core.ErrNotMinter)
}

func TestIdempotencyLRU_Eviction(t *testing.T) {
	lru := core.NewIdempotencyLRU(2)
	lru.Add("a")
	lru.Add("b")
	assert.True(t, lru.Contains("a")) // promotes a
	lru.Add("c")                      // evicts b

	assert.True(t, lru.Contains("a"))
	assert.False(t, lru.Contains("b"))
	assert.True(t, lru.Contains("c"))
	assert.Equal(t, 2, lru.Size())
	assert.Equal(t, int64(1), lru.Evictions())
}

func TestIdempotencyChecker_Warm(t *testing.T) {
	ic := core.NewIdempotencyChecker(2, nil, nil, zerolog.Nop())
	ic.Warm([]string{"old", "mid", "new"})

	assert.False(t, ic.IsDuplicate("transfer", "old"))
	assert.True(t, ic.IsDuplicate("transfer", "mid"))
	assert.True(t, ic.IsDuplicate("transfer", "new"))
}

func TestCommandKind_RoundTrip(t *testing.T) {
	for _, k := range []core.CommandKind{
		core.CommandTransfer, core.CommandTransferFrom, core.CommandApprove, core.CommandMint, core.CommandBurn,
	} {
		assert.Equal(t, k, core.ParseCommandKind(k.String()))
	}
	assert.Equal(t, core.CommandTransferFrom, core.ParseCommandKind("transfer-from"))
	assert.Equal(t, core.CommandUnknown, core.ParseCommandKind("rebase"))
}

// --- Token facade ---

type callerKey struct{}

func ctxIdentity(ctx context.Context) (ledger.Address, error) {
	a, ok := ctx.Value(callerKey{}).(ledger.Address)
	if !ok {
		return ledger.Address{}, core.ErrNoCaller
	}
	return a, nil
}

func TestToken_ResolvesCallerFromContext(t *testing.T) {
	h := newHarness(t)
	tok := core.NewToken(core.Params{Name: "Test Token", Symbol: "TST"}, h.engine, ctxIdentity, zerolog.Nop())
	assert.Equal(t, "Test Token", tok.Name())
	assert.Equal(t, "TST", tok.Symbol())

	ctxA := context.WithValue(context.Background(), callerKey{}, accA)
	ctxB := context.WithValue(context.Background(), callerKey{}, accB)

	_, err := tok.Mint(ctxA, accA, amt(100))
	require.NoError(t, err)
	_, err = tok.Approve(ctxA, accB, amt(60))
	require.NoError(t, err)
	_, err = tok.TransferFrom(ctxB, accA, accC, amt(50))
	require.NoError(t, err)
	_, err = tok.Transfer(ctxA, accB, amt(25))
	require.NoError(t, err)

	bal, err := tok.BalanceOf(accA)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), bal.Uint64())
	allow, err := tok.Allowance(accA, accB)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), allow.Uint64())

	_, err = tok.Burn(ctxA, accC, amt(50))
	require.NoError(t, err)
	supply, err := tok.TotalSupply()
	require.NoError(t, err)
	assert.Equal(t, uint64(50), supply.Uint64())
}

func TestToken_MissingCaller(t *testing.T) {
	h := newHarness(t)
	tok := core.NewToken(core.Params{}, h.engine, ctxIdentity, zerolog.Nop())

	_, err := tok.Transfer(context.Background(), accB, amt(0))
	assert.ErrorIs(t, err, core.ErrNoCaller)

	failing := func(context.Context) (ledger.Address, error) { return ledger.Address{}, errors.New("bad token") }
	tok = core.NewToken(core.Params{}, h.engine, failing, zerolog.Nop())
	_, err = tok.Approve(context.Background(), accB, amt(1))
	assert.ErrorIs(t, err, core.ErrNoCaller)
	assert.Contains(t, err.Error(), "bad token")

	tok = core.NewToken(core.Params{}, h.engine, nil, zerolog.Nop())
	_, err = tok.TransferFrom(context.Background(), accA, accB, amt(0))
	assert.ErrorIs(t, err, core.ErrNoCaller)
	assert.Zero(t, h.recorder.Len())
}
