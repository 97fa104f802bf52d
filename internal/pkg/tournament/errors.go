package tournament

import "errors"

var (
	ErrRecordsBucketNotFound = errors.New("tournament records bucket doesn't exist")

	ErrInvalidInput              = errors.New("invalid input")
	ErrAlreadyExists             = errors.New("tournament already exists")
	ErrNotFound                  = errors.New("tournament not found")
	ErrTournamentFinalized       = errors.New("tournament is already finalized")
	ErrTournamentNotFinalized    = errors.New("tournament is not finalized yet")
	ErrAlreadyRegistered         = errors.New("player is already registered")
	ErrCapacityExceeded          = errors.New("tournament is full")
	ErrUnauthorized              = errors.New("unauthorized")
	ErrInsufficientFunds         = errors.New("insufficient funds for entry fee")
	ErrInsufficientEscrowBalance = errors.New("insufficient escrow balance")
	ErrPoolOverflow              = errors.New("total pool overflows")
	ErrPayoutNotFound            = errors.New("no matching payout for winner")
	ErrPayoutAlreadyClaimed      = errors.New("payout already claimed")
	ErrEscrowWitnessMismatch     = errors.New("escrow address does not match stored witness")
	ErrRecordAddressMismatch     = errors.New("tournament record stored under foreign address")
)
