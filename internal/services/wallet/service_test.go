package wallet

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	apperrors "sayan/internal/errors"
	"sayan/internal/logger"
	"sayan/internal/models"
	"sayan/internal/repositories"
	"sayan/internal/repositories/dbtest"
	"sayan/internal/services/notification"
	"sayan/internal/services/settings"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetBalance(ctx context.Context, owner models.Owner) (decimal.Decimal, bool, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(decimal.Decimal), args.Bool(1), args.Error(2)
}

func (m *MockCache) BalanceVersion(ctx context.Context, owner models.Owner) (int64, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCache) SetBalance(ctx context.Context, owner models.Owner, balance decimal.Decimal, version int64, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, owner, balance, version, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) InvalidateBalance(ctx context.Context, owner models.Owner) error {
	args := m.Called(ctx, owner)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, event notification.Event) {
	m.Called(ctx, event)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(t *testing.T, cache BalanceCache, notifier notification.Notifier) (Service, repositories.Store) {
	t.Helper()
	store := dbtest.NewStore(t)
	svc := NewService(store, cache, settings.Static(settings.Defaults()), notifier, logger.NewNop(), WalletConfig{}, nil)
	return svc, store
}

func credit(owner models.Owner, amount string) Entry {
	return Entry{Owner: owner, Amount: dec(amount), SourceType: models.SourceAdmin, SourceID: "test"}
}

func TestWalletService_CreditCreatesWalletLazily(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil, nil)
	owner := models.AcademyOwner(1)

	_, err := svc.GetWallet(ctx, owner)
	assert.ErrorIs(t, err, apperrors.ErrWalletNotFound)

	entry, err := svc.Credit(ctx, credit(owner, "100.00"))
	require.NoError(t, err)
	assert.Equal(t, models.DirectionIn, entry.Direction)
	assert.True(t, entry.BalanceBefore.IsZero())
	assert.True(t, dec("100").Equal(entry.BalanceAfter))

	w, err := svc.GetWallet(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "SAR", w.Currency)
	assert.True(t, dec("100").Equal(w.Balance))
}

func TestWalletService_DebitInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil, nil)
	owner := models.StudentOwner(1)

	_, err := svc.Credit(ctx, credit(owner, "100.00"))
	require.NoError(t, err)

	_, err = svc.Debit(ctx, credit(owner, "150.00"))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	assert.Equal(t, apperrors.KindInsufficientFunds, apperrors.KindOf(err))

	balance, err := svc.GetBalance(ctx, owner)
	require.NoError(t, err)
	assert.True(t, dec("100.00").Equal(balance))

	_, total, err := svc.History(ctx, owner, repositories.TransactionFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestWalletService_DebitWithoutWallet(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	_, err := svc.Debit(context.Background(), credit(models.StudentOwner(9), "1.00"))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
}

func TestWalletService_RejectsInvalidEntries(t *testing.T) {
	owner := models.AcademyOwner(1)
	tests := []struct {
		name  string
		entry Entry
		want  error
	}{
		{"zero amount", credit(owner, "0"), apperrors.ErrInvalidAmount},
		{"negative amount", credit(owner, "-5"), apperrors.ErrInvalidAmount},
		{"three decimals", credit(owner, "1.005"), apperrors.ErrInvalidAmount},
		{"unknown source", Entry{Owner: owner, Amount: dec("1"), SourceType: "gift"}, apperrors.ErrInvalidSource},
		{"academy without id", credit(models.Owner{Type: models.OwnerAcademy}, "1"), apperrors.ErrInvalidOwner},
		{"unknown owner type", credit(models.Owner{Type: "tutor", ID: 1}, "1"), apperrors.ErrInvalidOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(t, nil, nil)
			_, err := svc.Credit(context.Background(), tt.entry)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

			ids, err := store.Wallets().ListIDs(context.Background())
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

func TestWalletService_TrailingZerosAreValid(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	_, err := svc.Credit(context.Background(), credit(models.AcademyOwner(1), "10.500"))
	assert.NoError(t, err)
}

func TestWalletService_PostRollsBackWithCaller(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, nil, nil)
	owner := models.AcademyOwner(2)
	boom := errors.New("invoice update failed")

	err := store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		if _, err := svc.Post(ctx, tx, models.DirectionIn, credit(owner, "40")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	balance, err := svc.GetBalance(ctx, owner)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestWalletService_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil, nil)
	owner := models.AcademyOwner(3)
	_, err := svc.Credit(ctx, credit(owner, "100.00"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, insufficient int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Debit(ctx, credit(owner, "10.00"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperrors.ErrInsufficientFunds):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, 10, insufficient)
	balance, err := svc.GetBalance(ctx, owner)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestWalletService_NoDriftOverManyOperations(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, nil, nil)
	owner := models.StudentOwner(42)

	ops := 10000
	if testing.Short() {
		ops = 500
	}

	rng := rand.New(rand.NewSource(7))
	expected := decimal.Zero
	for i := 0; i < ops; i++ {
		amount := decimal.New(int64(rng.Intn(100000)+1), -2)
		if rng.Intn(3) == 0 && expected.GreaterThanOrEqual(amount) {
			_, err := svc.Debit(ctx, Entry{Owner: owner, Amount: amount, SourceType: models.SourceAdjustment})
			require.NoError(t, err)
			expected = expected.Sub(amount)
			continue
		}
		_, err := svc.Credit(ctx, Entry{Owner: owner, Amount: amount, SourceType: models.SourceAdjustment})
		require.NoError(t, err)
		expected = expected.Add(amount)
	}

	w, err := svc.GetWallet(ctx, owner)
	require.NoError(t, err)
	assert.True(t, expected.Equal(w.Balance), "stored %s expected %s", w.Balance, expected)

	txs, err := store.Wallets().AllTransactions(ctx, w.ID, repositories.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txs, ops)
	assert.Empty(t, checkChain(txs))
	assert.True(t, FoldBalance(txs).Equal(w.Balance))

	report, err := svc.Reconcile(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

func TestWalletService_ReconcileFreezesOnMismatch(t *testing.T) {
	ctx := context.Background()
	notifier := new(MockNotifier)
	notifier.On("Send", mock.Anything, mock.MatchedBy(func(e notification.Event) bool {
		return e.Type == notification.EventIntegrityViolation && e.Recipient == models.SystemOwner()
	})).Once()

	svc, store := newTestService(t, nil, notifier)
	owner := models.AcademyOwner(5)
	_, err := svc.Credit(ctx, credit(owner, "80.00"))
	require.NoError(t, err)
	w, err := svc.GetWallet(ctx, owner)
	require.NoError(t, err)

	// Simulate an out-of-band write that bypassed the ledger.
	require.NoError(t, store.Wallets().UpdateBalance(ctx, w.ID, dec("95.00")))

	report, err := svc.Reconcile(ctx, w.ID)
	assert.ErrorIs(t, err, apperrors.ErrLedgerMismatch)
	assert.Equal(t, apperrors.KindIntegrity, apperrors.KindOf(err))
	require.NotNil(t, report)
	assert.False(t, report.Consistent())
	assert.True(t, dec("80").Equal(report.ComputedBalance))

	w, err = svc.GetWallet(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, models.WalletFrozen, w.Status)
	assert.True(t, dec("95").Equal(w.Balance), "balance must not be auto-corrected")

	_, err = svc.Credit(ctx, credit(owner, "1.00"))
	assert.ErrorIs(t, err, apperrors.ErrWalletFrozen)
	_, err = svc.Debit(ctx, credit(owner, "1.00"))
	assert.ErrorIs(t, err, apperrors.ErrWalletFrozen)

	notifier.AssertExpectations(t)
}

func TestWalletService_ReconcileAll(t *testing.T) {
	ctx := context.Background()
	notifier := new(MockNotifier)
	notifier.On("Send", mock.Anything, mock.Anything).Return()
	svc, store := newTestService(t, nil, notifier)

	_, err := svc.Credit(ctx, credit(models.AcademyOwner(1), "10"))
	require.NoError(t, err)
	_, err = svc.Credit(ctx, credit(models.AcademyOwner(2), "10"))
	require.NoError(t, err)
	bad, err := svc.GetWallet(ctx, models.AcademyOwner(2))
	require.NoError(t, err)
	require.NoError(t, store.Wallets().UpdateBalance(ctx, bad.ID, dec("0")))

	broken, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, broken, 1)
	assert.Equal(t, bad.ID, broken[0].WalletID)
}

func TestWalletService_GetBalanceUsesCache(t *testing.T) {
	ctx := context.Background()
	owner := models.AcademyOwner(7)
	cache := new(MockCache)
	svc, _ := newTestService(t, cache, nil)

	cache.On("InvalidateBalance", mock.Anything, owner).Return(nil).Once()
	_, err := svc.Credit(ctx, credit(owner, "12.34"))
	require.NoError(t, err)

	cache.On("GetBalance", mock.Anything, owner).Return(decimal.Zero, false, nil).Once()
	cache.On("BalanceVersion", mock.Anything, owner).Return(int64(3), nil).Once()
	cache.On("SetBalance", mock.Anything, owner, mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(dec("12.34"))
	}), int64(3), DefaultBalanceCacheTTL).Return(true, nil).Once()
	balance, err := svc.GetBalance(ctx, owner)
	require.NoError(t, err)
	assert.True(t, dec("12.34").Equal(balance))

	cache.On("GetBalance", mock.Anything, owner).Return(dec("12.34"), true, nil).Once()
	balance, err = svc.GetBalance(ctx, owner)
	require.NoError(t, err)
	assert.True(t, dec("12.34").Equal(balance))

	cache.AssertExpectations(t)
}

func TestWalletService_GetBalanceSkipsCacheWithoutVersion(t *testing.T) {
	ctx := context.Background()
	owner := models.StudentOwner(8)
	cache := new(MockCache)
	store := dbtest.NewStore(t)
	svc := NewService(store, cache, settings.Static(settings.Defaults()), nil, logger.NewNop(), WalletConfig{BalanceCacheTTL: time.Minute}, nil)

	cache.On("InvalidateBalance", mock.Anything, owner).Return(nil).Once()
	_, err := svc.Credit(ctx, credit(owner, "5"))
	require.NoError(t, err)

	cache.On("GetBalance", mock.Anything, owner).Return(decimal.Zero, false, nil).Once()
	cache.On("BalanceVersion", mock.Anything, owner).Return(int64(0), errors.New("timeout")).Once()
	balance, err := svc.GetBalance(ctx, owner)
	require.NoError(t, err)
	assert.True(t, dec("5").Equal(balance))

	cache.AssertNotCalled(t, "SetBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	cache.AssertExpectations(t)
}

func TestWalletService_HistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil, nil)
	owner := models.StudentOwner(3)

	for _, amount := range []string{"1", "2", "3"} {
		_, err := svc.Credit(ctx, credit(owner, amount))
		require.NoError(t, err)
	}

	page, total, err := svc.History(ctx, owner, repositories.TransactionFilter{}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.True(t, dec("3").Equal(page[0].Amount))
	assert.True(t, dec("2").Equal(page[1].Amount))

	empty, total, err := svc.History(ctx, models.StudentOwner(99), repositories.TransactionFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, empty)
}

func TestWalletService_HistoryFilters(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil, nil)
	owner := models.AcademyOwner(12)

	_, err := svc.Credit(ctx, Entry{Owner: owner, Amount: dec("85"), SourceType: models.SourceSettlement, SourceID: "PAY-1"})
	require.NoError(t, err)
	_, err = svc.Credit(ctx, Entry{Owner: owner, Amount: dec("40"), SourceType: models.SourceSettlement, SourceID: "PAY-2"})
	require.NoError(t, err)
	_, err = svc.Debit(ctx, Entry{Owner: owner, Amount: dec("50"), SourceType: models.SourceWithdrawal, SourceID: "1"})
	require.NoError(t, err)

	settlements, total, err := svc.History(ctx, owner, repositories.TransactionFilter{SourceType: models.SourceSettlement}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, settlements, 2)

	out, total, err := svc.History(ctx, owner, repositories.TransactionFilter{Direction: models.DirectionOut}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, models.SourceWithdrawal, out[0].SourceType)

	future := time.Now().Add(time.Hour)
	later := future.Add(time.Hour)
	none, total, err := svc.History(ctx, owner, repositories.TransactionFilter{From: &future, To: &later}, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)

	_, _, err = svc.History(ctx, owner, repositories.TransactionFilter{SourceType: "bonus"}, 10, 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, _, err = svc.History(ctx, owner, repositories.TransactionFilter{From: &later, To: &future}, 10, 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestWalletService_Stats(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil, nil)
	owner := models.AcademyOwner(13)
	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)

	empty, err := svc.Stats(ctx, owner, from, to)
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
	assert.True(t, empty.Net.IsZero())

	for _, e := range []Entry{
		{Owner: owner, Amount: dec("85.10"), SourceType: models.SourceSettlement, SourceID: "PAY-1"},
		{Owner: owner, Amount: dec("0.20"), SourceType: models.SourceSettlement, SourceID: "PAY-2"},
		{Owner: owner, Amount: dec("30"), SourceType: models.SourceRefund, SourceID: "7"},
	} {
		_, err := svc.Credit(ctx, e)
		require.NoError(t, err)
	}
	_, err = svc.Debit(ctx, Entry{Owner: owner, Amount: dec("50"), SourceType: models.SourceWithdrawal, SourceID: "7"})
	require.NoError(t, err)

	st, err := svc.Stats(ctx, owner, from, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 4, st.Count)
	assert.True(t, dec("115.30").Equal(st.TotalIn), "in %s", st.TotalIn)
	assert.True(t, dec("50").Equal(st.TotalOut))
	assert.True(t, dec("65.30").Equal(st.Net))
	require.Contains(t, st.BySource, models.SourceSettlement)
	assert.True(t, dec("85.30").Equal(st.BySource[models.SourceSettlement].In))
	assert.Equal(t, 2, st.BySource[models.SourceSettlement].Count)
	assert.True(t, dec("50").Equal(st.BySource[models.SourceWithdrawal].Out))

	_, err = svc.Stats(ctx, owner, to, from)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestWalletService_DeactivatedWalletAcceptsCreditsOnly(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil, nil)
	owner := models.StudentOwner(8)

	_, err := svc.Credit(ctx, credit(owner, "20"))
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, owner, "account closed"))

	_, err = svc.Debit(ctx, credit(owner, "5"))
	assert.ErrorIs(t, err, apperrors.ErrWalletInactive)

	_, err = svc.Credit(ctx, Entry{Owner: owner, Amount: dec("5"), SourceType: models.SourceRefund})
	assert.NoError(t, err)

	w, err := svc.GetWallet(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, models.WalletDeactivated, w.Status)
	assert.True(t, dec("25").Equal(w.Balance))
}
