package persistence_test

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"TokenLedger/internal/core"
	"TokenLedger/internal/event"
	"TokenLedger/internal/ledger"
	"TokenLedger/internal/persistence"
	"TokenLedger/internal/testutil"
)

// runStoreContract exercises the behaviour every ledger.ScanStore must share.
func runStoreContract(t *testing.T, store ledger.ScanStore) {
	t.Helper()

	alice, bob := testutil.Addr(1), testutil.Addr(2)

	got, err := store.Get(ledger.BalanceKey(alice))
	if err != nil {
		t.Fatalf("get absent: %v", err)
	}
	if got != nil {
		t.Fatalf("absent key returned %x, want nil", got)
	}

	j := ledger.NewJournal(store)
	l := ledger.NewLedger(j)
	if err := l.IncreaseSupply(testutil.Amount(100)); err != nil {
		t.Fatalf("increase supply: %v", err)
	}
	if err := l.Credit(bob, testutil.Amount(70)); err != nil {
		t.Fatalf("credit bob: %v", err)
	}
	if err := l.Credit(alice, testutil.Amount(30)); err != nil {
		t.Fatalf("credit alice: %v", err)
	}
	if err := ledger.NewAllowanceRegistry(j).Approve(alice, bob, testutil.Amount(5)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := j.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	raw, err := store.Get(ledger.BalanceKey(bob))
	if err != nil {
		t.Fatalf("get bob: %v", err)
	}
	if !bytes.Equal(raw, ledger.EncodeAmount(testutil.Amount(70))) {
		t.Errorf("got %x, want encoded 70", raw)
	}

	var scanned []ledger.Address
	err = store.Scan(ledger.BalancePrefix(), func(key, _ []byte) error {
		a, ok := ledger.ParseBalanceKey(key)
		if !ok {
			t.Errorf("scan returned non-balance key %x", key)
		}
		scanned = append(scanned, a)
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scanned) != 2 {
		t.Fatalf("got %d balance entries, want 2", len(scanned))
	}
	if bytes.Compare(scanned[0].BytesBE(), scanned[1].BytesBE()) > 0 {
		t.Errorf("scan not in key order")
	}

	testutil.AssertConserved(t, store)

	// A second journal overwrites in place and zeroed entries remain readable.
	j = ledger.NewJournal(store)
	l = ledger.NewLedger(j)
	_ = l.Debit(alice, testutil.Amount(30))
	_ = l.DecreaseSupply(testutil.Amount(30))
	if err := j.Commit(); err != nil {
		t.Fatalf("second commit: %v", err)
	}

	raw, _ = store.Get(ledger.BalanceKey(alice))
	if len(raw) != ledger.AmountSize {
		t.Errorf("zeroed entry has %d bytes, want %d", len(raw), ledger.AmountSize)
	}
	testutil.AssertConserved(t, store)
}

func TestMemoryStore_Contract(t *testing.T) {
	store := persistence.NewMemoryStore()
	runStoreContract(t, store)
	if store.Len() != 4 {
		t.Errorf("got %d entries, want 4", store.Len())
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := persistence.NewMemoryStore()
	key := ledger.SupplyKey()
	_ = store.Commit([]ledger.Entry{{Key: key, Value: ledger.EncodeAmount(testutil.Amount(9))}})

	v, _ := store.Get(key)
	v[31] = 0xff

	again, _ := store.Get(key)
	if again[31] != 9 {
		t.Errorf("store mutated through returned slice: got %d", again[31])
	}
}

func TestBoltStore_Contract(t *testing.T) {
	store, err := persistence.OpenBoltStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	runStoreContract(t, store)
}

func TestBoltStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	store, err := persistence.OpenBoltStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	err = store.Commit([]ledger.Entry{{Key: ledger.SupplyKey(), Value: ledger.EncodeAmount(testutil.Amount(42))}})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = persistence.OpenBoltStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	supply, err := ledger.NewLedger(ledger.NewJournal(store)).TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Uint64() != 42 {
		t.Errorf("got %d, want 42", supply.Uint64())
	}
}

func TestBoltStore_EngineResumesAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	a, b := testutil.Addr(0xA), testutil.Addr(0xB)

	store, err := persistence.OpenBoltStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rec := event.NewRecorder()
	engine := core.NewEngine(store, rec)
	dispatcher := core.NewDispatcher(core.NewTransferEngine(engine), core.NewSupplyController(engine), nil, core.NewMinterSet(a))
	if _, err := dispatcher.Process(&core.MintCommand{Key: "m1", Operator: a, To: a, Amount: testutil.Amount(10)}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := dispatcher.Process(&core.TransferCommand{Key: "t1", From: a, To: b, Amount: testutil.Amount(4)}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	last := rec.Envelopes()[1]
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = persistence.OpenBoltStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	tip, ok, err := ledger.ReadChainTip(store)
	if err != nil || !ok {
		t.Fatalf("read tip: ok=%v err=%v", ok, err)
	}
	if tip.Sequence != 2 || tip.StateHash != last.StateHash {
		t.Fatalf("got tip %d/%x, want 2/%x", tip.Sequence, tip.StateHash, last.StateHash)
	}

	rec = event.NewRecorder()
	engine = core.NewEngine(store, rec, core.ResumeFrom(tip))
	dispatcher = core.NewDispatcher(core.NewTransferEngine(engine), core.NewSupplyController(engine), nil, core.NewMinterSet(a))

	_, err = dispatcher.Process(&core.TransferCommand{Key: "t1", From: a, To: b, Amount: testutil.Amount(4)})
	if !errors.Is(err, core.ErrDuplicateCommand) {
		t.Errorf("replayed key: got %v, want %v", err, core.ErrDuplicateCommand)
	}

	env, err := dispatcher.Process(&core.TransferCommand{Key: "t2", From: a, To: b, Amount: testutil.Amount(1)})
	if err != nil {
		t.Fatalf("transfer after reopen: %v", err)
	}
	if env.Sequence != 3 {
		t.Errorf("got sequence %d, want 3", env.Sequence)
	}
	if env.PrevHash != last.StateHash {
		t.Errorf("chain broken across reopen: prev %x, want %x", env.PrevHash, last.StateHash)
	}
	testutil.AssertConserved(t, store)
}
