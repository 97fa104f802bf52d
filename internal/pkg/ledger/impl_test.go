package ledger_test

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/arena/internal/pkg/common"
	"github.com/vreid/arena/internal/pkg/ledger"
	"go.etcd.io/bbolt"
)

func newLedger(t *testing.T, mintEnabled bool) *ledger.LedgerService {
	t.Helper()

	databaseService, err := common.OpenDatabase(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = databaseService.Shutdown()
	})

	return &ledger.LedgerService{
		DatabaseService: databaseService,
		MintEnabled:     mintEnabled,
	}
}

func TestMintAndBalance(t *testing.T) {
	t.Parallel()

	s := newLedger(t, true)

	balance, err := s.Mint("alice", 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), balance)

	balance, err = s.Mint("alice", 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(105), balance)

	balance, err = s.GetBalance("bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), balance)

	_, err = s.Mint("alice", 0)
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = s.Mint("", 1)
	require.ErrorIs(t, err, ledger.ErrInvalidAddress)

	_, err = s.Mint(strings.Repeat("x", ledger.MaxAddressLength+1), 1)
	require.ErrorIs(t, err, ledger.ErrInvalidAddress)

	_, err = s.Mint("alice", math.MaxUint64)
	require.ErrorIs(t, err, ledger.ErrBalanceOverflow)

	balance, err = s.GetBalance("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(105), balance)
}

func TestMintRefusesReservedAccount(t *testing.T) {
	t.Parallel()

	s := newLedger(t, true)

	err := s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		return ledger.Reserve(tx, "escrow")
	})
	require.NoError(t, err)

	_, err = s.Mint("escrow", 10)
	require.ErrorIs(t, err, ledger.ErrReservedAccount)
}

func TestTransferIsAllOrNothing(t *testing.T) {
	t.Parallel()

	s := newLedger(t, true)

	_, err := s.Mint("alice", 10)
	require.NoError(t, err)

	_, err = s.Mint("bob", math.MaxUint64)
	require.NoError(t, err)

	err = s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		require.ErrorIs(t, ledger.Transfer(tx, "alice", "carol", 11), ledger.ErrInsufficientFunds)
		require.ErrorIs(t, ledger.Transfer(tx, "alice", "bob", 1), ledger.ErrBalanceOverflow)
		require.ErrorIs(t, ledger.Transfer(tx, "alice", "alice", 1), ledger.ErrSameAccount)

		return ledger.Transfer(tx, "alice", "carol", 4)
	})
	require.NoError(t, err)

	for address, expected := range map[string]uint64{
		"alice": 6,
		"bob":   math.MaxUint64,
		"carol": 4,
	} {
		balance, err := s.GetBalance(address)
		require.NoError(t, err)
		assert.Equal(t, expected, balance, address)
	}
}

func TestDebitAndCredit(t *testing.T) {
	t.Parallel()

	s := newLedger(t, false)

	err := s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		require.NoError(t, ledger.Credit(tx, "alice", 3))
		require.ErrorIs(t, ledger.Debit(tx, "alice", 4), ledger.ErrInsufficientFunds)
		require.NoError(t, ledger.Debit(tx, "alice", 3))

		balance, err := ledger.Balance(tx, "alice")
		require.NoError(t, err)
		assert.Equal(t, uint64(0), balance)

		return nil
	})
	require.NoError(t, err)
}

func TestPostMint(t *testing.T) {
	t.Parallel()

	e := echo.New()
	s := newLedger(t, true)
	s.Routes(e)

	req := httptest.NewRequest(http.MethodPost, "/api/ledger/alice/mint", strings.NewReader(`{"amount":25}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"address":"alice","balance":25}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/ledger/alice", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"address":"alice","balance":25}`, rec.Body.String())
}

func TestPostMintDisabled(t *testing.T) {
	t.Parallel()

	e := echo.New()
	s := newLedger(t, false)
	s.Routes(e)

	req := httptest.NewRequest(http.MethodPost, "/api/ledger/alice/mint", strings.NewReader(`{"amount":25}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
