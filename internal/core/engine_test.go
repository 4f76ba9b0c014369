package core_test

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"TokenLedger/internal/core"
	"TokenLedger/internal/event"
	"TokenLedger/internal/ledger"
	"TokenLedger/internal/observability"
	"TokenLedger/internal/persistence"
	"TokenLedger/internal/testutil"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	accA = testutil.Addr(0xA)
	accB = testutil.Addr(0xB)
	accC = testutil.Addr(0xC)
)

// --- Test helpers ---

type harness struct {
	store     *persistence.MemoryStore
	recorder  *event.Recorder
	engine    *core.Engine
	transfers *core.TransferEngine
	supply    *core.SupplyController
	metrics   *observability.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := persistence.NewMemoryStore()
	rec := event.NewRecorder()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	engine := core.NewEngine(store, rec, core.WithMetrics(metrics), core.WithClock(func() time.Time { return fixed }))
	return &harness{
		store:     store,
		recorder:  rec,
		engine:    engine,
		transfers: core.NewTransferEngine(engine),
		supply:    core.NewSupplyController(engine),
		metrics:   metrics,
	}
}

func (h *harness) balance(t *testing.T, a ledger.Address) uint64 {
	t.Helper()
	b, err := h.transfers.BalanceOf(a)
	require.NoError(t, err)
	return b.Uint64()
}

func (h *harness) allowance(t *testing.T, owner, spender ledger.Address) uint64 {
	t.Helper()
	v, err := h.transfers.Allowance(owner, spender)
	require.NoError(t, err)
	return v.Uint64()
}

func (h *harness) totalSupply(t *testing.T) uint64 {
	t.Helper()
	s, err := h.transfers.TotalSupply()
	require.NoError(t, err)
	return s.Uint64()
}

func (h *harness) mustMint(t *testing.T, to ledger.Address, amount uint64) {
	t.Helper()
	_, err := h.supply.Mint(to, testutil.Amount(amount))
	require.NoError(t, err)
}

func amt(v uint64) *uint256.Int { return testutil.Amount(v) }

// ============================================================================
// Test: allowance scenario
// ============================================================================

func TestDelegatedTransferScenario(t *testing.T) {
	h := newHarness(t)

	h.mustMint(t, accA, 1000)
	_, err := h.transfers.Approve(accA, accB, amt(300))
	require.NoError(t, err)

	_, err = h.transfers.TransferFrom(accB, accA, accC, amt(200))
	require.NoError(t, err)

	assert.Equal(t, uint64(800), h.balance(t, accA))
	assert.Equal(t, uint64(200), h.balance(t, accC))
	assert.Equal(t, uint64(100), h.allowance(t, accA, accB))
	assert.Equal(t, uint64(1000), h.totalSupply(t))

	emitted := h.recorder.Len()

	_, err = h.transfers.TransferFrom(accB, accA, accC, amt(200))
	var allowErr *ledger.InsufficientAllowanceError
	require.ErrorAs(t, err, &allowErr)
	assert.Equal(t, accA, allowErr.Owner)
	assert.Equal(t, accB, allowErr.Spender)
	assert.Equal(t, uint64(100), allowErr.Allowance.Uint64())
	assert.Equal(t, uint64(200), allowErr.Needed.Uint64())

	assert.Equal(t, uint64(800), h.balance(t, accA))
	assert.Equal(t, uint64(200), h.balance(t, accC))
	assert.Equal(t, uint64(100), h.allowance(t, accA, accB))
	assert.Equal(t, emitted, h.recorder.Len(), "failed operation must not emit")
	testutil.AssertConserved(t, h.store)
}

func TestTransferFrom_ByOwnerIgnoresAllowance(t *testing.T) {
	h := newHarness(t)
	h.mustMint(t, accA, 50)

	_, err := h.transfers.TransferFrom(accA, accA, accB, amt(50))
	require.NoError(t, err)

	assert.Equal(t, uint64(0), h.balance(t, accA))
	assert.Equal(t, uint64(50), h.balance(t, accB))
	assert.Equal(t, uint64(0), h.allowance(t, accA, accA))
}

func TestTransferFrom_AllowanceCheckedBeforeBalance(t *testing.T) {
	h := newHarness(t)
	// B holds a quota but A has nothing: the spend succeeds, the debit
	// fails, and the whole operation rolls back including the spend.
	_, err := h.transfers.Approve(accA, accB, amt(10))
	require.NoError(t, err)

	_, err = h.transfers.TransferFrom(accB, accA, accC, amt(10))
	var balErr *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &balErr)
	assert.Equal(t, uint64(10), h.allowance(t, accA, accB))
}

// ============================================================================
// Test: Transfer
// ============================================================================

func TestTransfer_MovesValueAndEmits(t *testing.T) {
	h := newHarness(t)
	h.mustMint(t, accA, 100)

	env, err := h.transfers.Transfer(accA, accB, amt(40))
	require.NoError(t, err)

	assert.Equal(t, uint64(60), h.balance(t, accA))
	assert.Equal(t, uint64(40), h.balance(t, accB))

	tr, ok := env.Payload.(*event.Transfer)
	require.True(t, ok)
	assert.Equal(t, accA, tr.From)
	assert.Equal(t, accB, tr.To)
	assert.Equal(t, uint64(40), tr.Amount.Uint64())
	assert.Same(t, env, h.recorder.Envelopes()[1])
}

func TestTransfer_InsufficientBalanceLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)
	h.mustMint(t, accA, 10)

	_, err := h.transfers.Transfer(accA, accB, amt(11))
	var balErr *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &balErr)
	assert.Equal(t, accA, balErr.Account)

	assert.Equal(t, uint64(10), h.balance(t, accA))
	assert.Equal(t, uint64(0), h.balance(t, accB))
	assert.Equal(t, uint64(10), h.totalSupply(t))
	assert.Equal(t, uint64(1), h.engine.Sequence())
}

func TestTransfer_NullParties(t *testing.T) {
	h := newHarness(t)
	h.mustMint(t, accA, 10)

	_, err := h.transfers.Transfer(accA, ledger.NullAddress, amt(1))
	assert.ErrorIs(t, err, ledger.ErrInvalidReceiver)

	_, err = h.transfers.Transfer(ledger.NullAddress, accA, amt(0))
	assert.ErrorIs(t, err, ledger.ErrInvalidSender)

	_, err = h.transfers.TransferFrom(accB, ledger.NullAddress, accA, amt(0))
	assert.ErrorIs(t, err, ledger.ErrInvalidSender)

	_, err = h.transfers.TransferFrom(accA, accA, ledger.NullAddress, amt(1))
	assert.ErrorIs(t, err, ledger.ErrInvalidReceiver)

	assert.Equal(t, uint64(10), h.balance(t, accA))
}

func TestTransfer_SelfTransferRequiresBalance(t *testing.T) {
	h := newHarness(t)
	h.mustMint(t, accA, 5)

	_, err := h.transfers.Transfer(accA, accA, amt(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), h.balance(t, accA))

	_, err = h.transfers.Transfer(accA, accA, amt(6))
	var balErr *ledger.InsufficientBalanceError
	assert.ErrorAs(t, err, &balErr)
}

func TestTransfer_ZeroAmountEmits(t *testing.T) {
	h := newHarness(t)

	_, err := h.transfers.Transfer(accA, accB, amt(0))
	require.NoError(t, err)
	assert.Len(t, h.recorder.Transfers(), 1)
}

func TestTransfer_NilAmount(t *testing.T) {
	h := newHarness(t)
	_, err := h.transfers.Transfer(accA, accB, nil)
	assert.Error(t, err)
	assert.Equal(t, "internal", ledger.Reason(err))
}

// ============================================================================
// Test: Approve
// ============================================================================

func TestApprove_OverwritesAndEmits(t *testing.T) {
	h := newHarness(t)

	_, err := h.transfers.Approve(accA, accB, amt(300))
	require.NoError(t, err)
	_, err = h.transfers.Approve(accA, accB, amt(7))
	require.NoError(t, err)

	assert.Equal(t, uint64(7), h.allowance(t, accA, accB))

	approvals := h.recorder.Approvals()
	require.Len(t, approvals, 2)
	assert.Equal(t, uint64(7), approvals[1].Amount.Uint64())
}

func TestApprove_NullParties(t *testing.T) {
	h := newHarness(t)

	_, err := h.transfers.Approve(ledger.NullAddress, accB, amt(1))
	assert.ErrorIs(t, err, ledger.ErrInvalidApprover)

	_, err = h.transfers.Approve(accA, ledger.NullAddress, amt(1))
	assert.ErrorIs(t, err, ledger.ErrInvalidSpender)

	assert.Equal(t, 0, h.recorder.Len())
}

// ============================================================================
// Test: Mint / Burn
// ============================================================================

func TestMintThenBurn(t *testing.T) {
	h := newHarness(t)

	h.mustMint(t, accA, 100)
	_, err := h.supply.Burn(accA, amt(40))
	require.NoError(t, err)

	assert.Equal(t, uint64(60), h.totalSupply(t))
	assert.Equal(t, uint64(60), h.balance(t, accA))

	transfers := h.recorder.Transfers()
	require.Len(t, transfers, 2)
	assert.True(t, transfers[0].IsMint())
	assert.Equal(t, accA, transfers[0].To)
	assert.Equal(t, uint64(100), transfers[0].Amount.Uint64())
	assert.True(t, transfers[1].IsBurn())
	assert.Equal(t, accA, transfers[1].From)
	assert.Equal(t, uint64(40), transfers[1].Amount.Uint64())
	testutil.AssertConserved(t, h.store)
}

func TestMint_NullReceiver(t *testing.T) {
	h := newHarness(t)
	_, err := h.supply.Mint(ledger.NullAddress, amt(1))
	assert.ErrorIs(t, err, ledger.ErrInvalidReceiver)
	assert.Equal(t, uint64(0), h.totalSupply(t))
}

func TestBurn_Failures(t *testing.T) {
	h := newHarness(t)
	h.mustMint(t, accA, 10)

	_, err := h.supply.Burn(ledger.NullAddress, amt(1))
	assert.ErrorIs(t, err, ledger.ErrInvalidSender)

	_, err = h.supply.Burn(accA, amt(11))
	var balErr *ledger.InsufficientBalanceError
	assert.ErrorAs(t, err, &balErr)

	assert.Equal(t, uint64(10), h.totalSupply(t))
	assert.Equal(t, uint64(10), h.balance(t, accA))
}

func TestMint_OverflowAtMaximum(t *testing.T) {
	h := newHarness(t)
	maxAmount := new(uint256.Int).SetAllOne()

	_, err := h.supply.Mint(accA, maxAmount)
	require.NoError(t, err)

	_, err = h.supply.Mint(accB, amt(1))
	assert.ErrorIs(t, err, ledger.ErrOverflow)

	supply, err := h.transfers.TotalSupply()
	require.NoError(t, err)
	assert.True(t, supply.Eq(maxAmount))
	assert.Equal(t, uint64(0), h.balance(t, accB))
	assert.Equal(t, 1, h.recorder.Len())
}

// ============================================================================
// Test: invariants under random operation sequences
// ============================================================================

func TestRandomOperations_PreserveConservation(t *testing.T) {
	h := newHarness(t)
	rng := rand.New(rand.NewSource(42))
	accounts := []ledger.Address{accA, accB, accC, testutil.Addr(0xD)}
	pick := func() ledger.Address { return accounts[rng.Intn(len(accounts))] }

	for i := 0; i < 500; i++ {
		before := h.recorder.Len()
		amount := amt(uint64(rng.Intn(200)))

		var err error
		switch rng.Intn(5) {
		case 0:
			_, err = h.supply.Mint(pick(), amount)
		case 1:
			_, err = h.supply.Burn(pick(), amount)
		case 2:
			_, err = h.transfers.Transfer(pick(), pick(), amount)
		case 3:
			_, err = h.transfers.Approve(pick(), pick(), amount)
		case 4:
			_, err = h.transfers.TransferFrom(pick(), pick(), pick(), amount)
		}

		if err != nil {
			require.True(t, ledger.IsRejection(err), "unexpected fault: %v", err)
			require.Equal(t, before, h.recorder.Len(), "rejected op %d emitted", i)
		} else {
			require.Equal(t, before+1, h.recorder.Len(), "op %d did not emit exactly once", i)
		}
		testutil.AssertConserved(t, h.store)
	}
}

// ============================================================================
// Test: sequencing and hash chain
// ============================================================================

func runScript(t *testing.T, h *harness) {
	t.Helper()
	h.mustMint(t, accA, 1000)
	_, err := h.transfers.Approve(accA, accB, amt(300))
	require.NoError(t, err)
	_, err = h.transfers.TransferFrom(accB, accA, accC, amt(200))
	require.NoError(t, err)
	_, err = h.transfers.Transfer(accC, accB, amt(50))
	require.NoError(t, err)
	_, err = h.supply.Burn(accB, amt(50))
	require.NoError(t, err)
}

func TestHashChain_DeterministicAndLinked(t *testing.T) {
	h1, h2 := newHarness(t), newHarness(t)
	runScript(t, h1)
	runScript(t, h2)

	envs1, envs2 := h1.recorder.Envelopes(), h2.recorder.Envelopes()
	require.Len(t, envs1, 5)
	require.Len(t, envs2, 5)

	assert.Equal(t, core.GenesisHash(), envs1[0].PrevHash)
	for i := range envs1 {
		assert.Equal(t, uint64(i+1), envs1[i].Sequence)
		assert.Equal(t, envs1[i].StateHash, envs2[i].StateHash, "hash %d diverged", i)
		assert.NotEqual(t, envs1[i].ID, envs2[i].ID)
		if i > 0 {
			assert.Equal(t, envs1[i-1].StateHash, envs1[i].PrevHash)
		}
	}
	assert.Equal(t, envs1[4].StateHash, h1.engine.StateHash())
}

func TestHashChain_DiffersOnDifferentHistory(t *testing.T) {
	h1, h2 := newHarness(t), newHarness(t)
	h1.mustMint(t, accA, 1)
	h2.mustMint(t, accA, 2)
	assert.NotEqual(t, h1.engine.StateHash(), h2.engine.StateHash())
}

func TestRejectedOperationDoesNotAdvanceSequence(t *testing.T) {
	h := newHarness(t)
	h.mustMint(t, accA, 1)
	tip := h.engine.StateHash()

	_, err := h.transfers.Transfer(accA, accB, amt(2))
	require.Error(t, err)

	assert.Equal(t, uint64(1), h.engine.Sequence())
	assert.Equal(t, tip, h.engine.StateHash())
	assert.Equal(t, float64(1),
		testutil.MetricValue(t, h.metrics.OpsRejected.WithLabelValues(core.OpTransfer, "insufficient_balance")))
	assert.Equal(t, float64(1),
		testutil.MetricValue(t, h.metrics.OpsApplied.WithLabelValues(core.OpMint)))
}

func TestWithStartState_ResumesChain(t *testing.T) {
	h := newHarness(t)
	runScript(t, h)
	last := h.recorder.Envelopes()[4]

	rec := event.NewRecorder()
	resumed := core.NewEngine(h.store, rec, core.WithStartState(last.Sequence, last.StateHash))
	_, err := core.NewTransferEngine(resumed).Transfer(accA, accB, amt(1))
	require.NoError(t, err)

	env := rec.Envelopes()[0]
	assert.Equal(t, uint64(6), env.Sequence)
	assert.Equal(t, last.StateHash, env.PrevHash)
}

func TestConcurrentOperations_EmitInCommitOrder(t *testing.T) {
	h := newHarness(t)
	h.mustMint(t, accA, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := accB
			if i%2 == 0 {
				to = accC
			}
			_, _ = h.transfers.Transfer(accA, to, amt(10))
		}(i)
	}
	wg.Wait()

	envs := h.recorder.Envelopes()
	require.Len(t, envs, 51)
	for i, env := range envs {
		assert.Equal(t, uint64(i+1), env.Sequence)
	}
	assert.Equal(t, uint64(500), h.balance(t, accA))
	testutil.AssertConserved(t, h.store)
}

// ============================================================================
// Test: storage faults
// ============================================================================

type failingStore struct {
	*persistence.MemoryStore
	commitErr error
}

func (s *failingStore) Commit(entries []ledger.Entry) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	return s.MemoryStore.Commit(entries)
}

func TestStoreCommitFailure_NoEventNoSequence(t *testing.T) {
	store := &failingStore{MemoryStore: persistence.NewMemoryStore()}
	rec := event.NewRecorder()
	engine := core.NewEngine(store, rec)
	supply := core.NewSupplyController(engine)

	_, err := supply.Mint(accA, amt(5))
	require.NoError(t, err)

	fault := errors.New("disk full")
	store.commitErr = fault
	_, err = supply.Mint(accA, amt(5))
	assert.ErrorIs(t, err, fault)
	assert.False(t, ledger.IsRejection(err))

	assert.Equal(t, 1, rec.Len())
	assert.Equal(t, uint64(1), engine.Sequence())
	assert.Equal(t, rec.Envelopes()[0].StateHash, engine.StateHash())
	testutil.AssertConserved(t, store.MemoryStore)

	store.commitErr = nil
	env, err := supply.Mint(accA, amt(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), env.Sequence)
	assert.Equal(t, rec.Envelopes()[0].StateHash, env.PrevHash)
}

func TestEngine_CommitsChainTipWithState(t *testing.T) {
	h := newHarness(t)
	runScript(t, h)

	tip, ok, err := ledger.ReadChainTip(h.store)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, h.engine.Sequence(), tip.Sequence)
	assert.Equal(t, h.engine.StateHash(), tip.StateHash)

	_, err = h.transfers.Transfer(accA, accB, amt(1_000_000))
	require.Error(t, err)
	after, _, err := ledger.ReadChainTip(h.store)
	require.NoError(t, err)
	assert.Equal(t, tip, after, "rejected operation moved the stored tip")
}

// blockingSink holds the engine lock inside Emit until released.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSink) Emit(*event.Envelope) {
	close(s.entered)
	<-s.release
}

func TestEngine_VerifyWaitsForInFlightOperation(t *testing.T) {
	store := persistence.NewMemoryStore()
	sink := &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
	engine := core.NewEngine(store, sink)

	go func() { _, _ = core.NewSupplyController(engine).Mint(accA, amt(5)) }()
	<-sink.entered

	verified := make(chan error, 1)
	go func() { verified <- engine.Verify(ledger.NewInvariantValidator(store)) }()

	select {
	case <-verified:
		t.Fatal("Verify ran while an operation held the engine")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.release)
	select {
	case err := <-verified:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Verify did not run after the operation finished")
	}
}
