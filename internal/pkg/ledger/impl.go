package ledger

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/arena/internal/pkg/common"
	"go.etcd.io/bbolt"
)

const MaxAddressLength = 64

var (
	ErrBalancesBucketNotFound = errors.New("balances bucket doesn't exist")
	ErrReservedBucketNotFound = errors.New("reserved bucket doesn't exist")

	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceOverflow   = errors.New("balance overflow")
	ErrSameAccount       = errors.New("transfer to same account")
	ErrReservedAccount   = errors.New("account is reserved for custody")
)

type LedgerService struct {
	DatabaseService *common.DatabaseService

	MintEnabled bool
}

func NewLedgerService(i do.Injector) (*LedgerService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	mintEnabled := do.MustInvokeNamed[bool](i, "mint-enabled")

	result := &LedgerService{
		DatabaseService: databaseService,
		MintEnabled:     mintEnabled,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Routes)

	return result, nil
}

func (s *LedgerService) Routes(e *echo.Echo) {
	ledgerGroup := e.Group("/api/ledger")

	ledgerGroup.GET("/:address", s.GetAccount)
	ledgerGroup.POST("/:address/mint", s.PostMint)
}

func ValidateAddress(address string) error {
	if len(address) == 0 || len(address) > MaxAddressLength || strings.TrimSpace(address) != address {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	return nil
}

func balances(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	bucket := tx.Bucket([]byte(common.LedgerBalancesBucket))
	if bucket == nil {
		return nil, ErrBalancesBucketNotFound
	}

	return bucket, nil
}

func reserved(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	bucket := tx.Bucket([]byte(common.LedgerReservedBucket))
	if bucket == nil {
		return nil, ErrReservedBucketNotFound
	}

	return bucket, nil
}

func Balance(tx *bbolt.Tx, address string) (uint64, error) {
	bucket, err := balances(tx)
	if err != nil {
		return 0, err
	}

	return common.BytesToUint64(bucket.Get([]byte(address)), 0), nil
}

func putBalance(tx *bbolt.Tx, address string, amount uint64) error {
	bucket, err := balances(tx)
	if err != nil {
		return err
	}

	err = bucket.Put([]byte(address), common.Uint64ToBytes(amount))
	if err != nil {
		return fmt.Errorf("failed to put balance: %w", err)
	}

	return nil
}

func Credit(tx *bbolt.Tx, address string, amount uint64) error {
	balance, err := Balance(tx, address)
	if err != nil {
		return err
	}

	if balance > ^uint64(0)-amount {
		return fmt.Errorf("%w: have=%d add=%d", ErrBalanceOverflow, balance, amount)
	}

	return putBalance(tx, address, balance+amount)
}

func Debit(tx *bbolt.Tx, address string, amount uint64) error {
	balance, err := Balance(tx, address)
	if err != nil {
		return err
	}

	if balance < amount {
		return fmt.Errorf("%w: have=%d need=%d", ErrInsufficientFunds, balance, amount)
	}

	return putBalance(tx, address, balance-amount)
}

// Transfer checks both legs before writing either, so a failed transfer
// leaves both balances untouched even inside a transaction that commits.
func Transfer(tx *bbolt.Tx, from string, to string, amount uint64) error {
	if from == to {
		return ErrSameAccount
	}

	fromBalance, err := Balance(tx, from)
	if err != nil {
		return err
	}

	toBalance, err := Balance(tx, to)
	if err != nil {
		return err
	}

	if fromBalance < amount {
		return fmt.Errorf("%w: have=%d need=%d", ErrInsufficientFunds, fromBalance, amount)
	}

	if toBalance > ^uint64(0)-amount {
		return fmt.Errorf("%w: have=%d add=%d", ErrBalanceOverflow, toBalance, amount)
	}

	err = putBalance(tx, from, fromBalance-amount)
	if err != nil {
		return err
	}

	return putBalance(tx, to, toBalance+amount)
}

func Reserve(tx *bbolt.Tx, address string) error {
	bucket, err := reserved(tx)
	if err != nil {
		return err
	}

	err = bucket.Put([]byte(address), []byte{1})
	if err != nil {
		return fmt.Errorf("failed to reserve address: %w", err)
	}

	return nil
}

func IsReserved(tx *bbolt.Tx, address string) (bool, error) {
	bucket, err := reserved(tx)
	if err != nil {
		return false, err
	}

	return bucket.Get([]byte(address)) != nil, nil
}

func (s *LedgerService) GetBalance(address string) (uint64, error) {
	var result uint64

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		balance, err := Balance(tx, address)
		result = balance

		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}

	return result, nil
}

// Mint funds an externally controlled account. Custody accounts are refused
// since their balance is owned by the tournament that reserved them.
func (s *LedgerService) Mint(address string, amount uint64) (uint64, error) {
	err := ValidateAddress(address)
	if err != nil {
		return 0, err
	}

	if amount == 0 {
		return 0, ErrInvalidAmount
	}

	var result uint64

	err = s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		isReserved, err := IsReserved(tx, address)
		if err != nil {
			return err
		}

		if isReserved {
			return ErrReservedAccount
		}

		err = Credit(tx, address, amount)
		if err != nil {
			return err
		}

		result, err = Balance(tx, address)

		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to mint: %w", err)
	}

	return result, nil
}

func (s *LedgerService) GetAccount(c echo.Context) error {
	address := c.Param("address")

	balance, err := s.GetBalance(address)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read balance")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, Account{Address: address, Balance: balance})
}

func (s *LedgerService) PostMint(c echo.Context) error {
	if !s.MintEnabled {
		return echo.NewHTTPError(http.StatusForbidden, "minting is disabled")
	}

	var request MintRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	address := c.Param("address")

	balance, err := s.Mint(address, request.Amount)

	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrInvalidAmount):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrReservedAccount):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrBalanceOverflow):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mint")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, Account{Address: address, Balance: balance})
}
