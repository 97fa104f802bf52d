package tournament

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/samber/do/v2"
	"github.com/vreid/arena/internal/pkg/common"
	"github.com/vreid/arena/internal/pkg/derivation"
	"github.com/vreid/arena/internal/pkg/journal"
	"github.com/vreid/arena/internal/pkg/ledger"
	"go.etcd.io/bbolt"
)

const (
	MinTournamentIDLength = 1
	MaxTournamentIDLength = 50
	MaxParticipants       = 64

	DroppedEventsCounter = "tournament.events.dropped"
)

type TournamentService struct {
	DatabaseService *common.DatabaseService
	Deriver         *derivation.Deriver

	EventSink chan<- journal.Event
	Registry  metrics.Registry
}

func NewTournamentService(i do.Injector) (*TournamentService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	deriver := do.MustInvoke[*derivation.Deriver](i)
	eventSink := do.MustInvokeNamed[chan<- journal.Event](i, "event-sink")
	registry := do.MustInvoke[metrics.Registry](i)

	result := &TournamentService{
		DatabaseService: databaseService,
		Deriver:         deriver,

		EventSink: eventSink,
		Registry:  registry,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Routes)

	return result, nil
}

func ValidateTournamentID(tournamentID string) error {
	if len(tournamentID) < MinTournamentIDLength || len(tournamentID) > MaxTournamentIDLength {
		return fmt.Errorf("%w: tournament id must be %d-%d bytes, got %d",
			ErrInvalidInput, MinTournamentIDLength, MaxTournamentIDLength, len(tournamentID))
	}

	return nil
}

func validateCaller(caller string) error {
	err := ledger.ValidateAddress(caller)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	return nil
}

// rejectCustodyCaller stops a custody address from acting as a player, which
// would let one escrow pay into or out of another.
func rejectCustodyCaller(tx *bbolt.Tx, caller string) error {
	isReserved, err := ledger.IsReserved(tx, caller)
	if err != nil {
		return fmt.Errorf("failed to check caller: %w", err)
	}

	if isReserved {
		return fmt.Errorf("%w: custody address cannot act as caller", ErrUnauthorized)
	}

	return nil
}

func records(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	bucket := tx.Bucket([]byte(common.TournamentRecordsBucket))
	if bucket == nil {
		return nil, ErrRecordsBucketNotFound
	}

	return bucket, nil
}

func (s *TournamentService) load(tx *bbolt.Tx, tournamentID string) (*Tournament, error) {
	err := ValidateTournamentID(tournamentID)
	if err != nil {
		return nil, err
	}

	bucket, err := records(tx)
	if err != nil {
		return nil, err
	}

	address, bump, err := s.Deriver.TournamentAddress(tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive tournament address: %w", err)
	}

	value := bucket.Get([]byte(address))
	if value == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, tournamentID)
	}

	var result Tournament

	err = json.Unmarshal(value, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal tournament: %w", err)
	}

	if result.Address != address || result.Bump != bump || result.TournamentID != tournamentID {
		return nil, fmt.Errorf("%w: %s", ErrRecordAddressMismatch, address)
	}

	err = s.Deriver.VerifyEscrow(result.EscrowAddress, result.EscrowBump, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEscrowWitnessMismatch, err)
	}

	return &result, nil
}

func save(tx *bbolt.Tx, tournament *Tournament) error {
	bucket, err := records(tx)
	if err != nil {
		return err
	}

	value, err := json.Marshal(tournament)
	if err != nil {
		return fmt.Errorf("failed to marshal tournament: %w", err)
	}

	err = bucket.Put([]byte(tournament.Address), value)
	if err != nil {
		return fmt.Errorf("failed to put tournament: %w", err)
	}

	return nil
}

// publish hands a committed event to the consumer without blocking the
// caller. A dropped event is still in the journal bucket.
func (s *TournamentService) publish(event journal.Event) {
	if s.EventSink == nil {
		return
	}

	select {
	case s.EventSink <- event:
	default:
		if s.Registry != nil {
			metrics.GetOrRegisterCounter(DroppedEventsCounter, s.Registry).Inc(1)
		}
	}
}

func (s *TournamentService) CreateTournament(caller string, tournamentID string, entryFee uint64) (*Tournament, error) {
	err := ValidateTournamentID(tournamentID)
	if err != nil {
		return nil, err
	}

	err = validateCaller(caller)
	if err != nil {
		return nil, err
	}

	address, bump, err := s.Deriver.TournamentAddress(tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive tournament address: %w", err)
	}

	escrowAddress, escrowBump, err := s.Deriver.EscrowAddress(tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive escrow address: %w", err)
	}

	result := &Tournament{
		Address: address,
		Bump:    bump,

		Authority:    caller,
		TournamentID: tournamentID,
		EntryFee:     entryFee,
		TotalPool:    0,
		Participants: []string{},
		IsFinalized:  false,

		EscrowAddress: escrowAddress,
		EscrowBump:    escrowBump,

		CreatedAt: time.Now().UTC(),
	}

	var event journal.Event

	err = s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		bucket, err := records(tx)
		if err != nil {
			return err
		}

		if bucket.Get([]byte(address)) != nil {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, tournamentID)
		}

		err = rejectCustodyCaller(tx, caller)
		if err != nil {
			return err
		}

		escrowBalance, err := ledger.Balance(tx, escrowAddress)
		if err != nil {
			return fmt.Errorf("failed to read escrow balance: %w", err)
		}

		if escrowBalance != 0 {
			return fmt.Errorf("%w: escrow account already holds funds", ErrAlreadyExists)
		}

		err = ledger.Reserve(tx, escrowAddress)
		if err != nil {
			return err
		}

		err = save(tx, result)
		if err != nil {
			return err
		}

		event, err = journal.Append(tx, journal.EventTypeTournamentCreated, tournamentID, TournamentCreated{
			TournamentID:  tournamentID,
			Authority:     caller,
			EntryFee:      entryFee,
			EscrowAddress: escrowAddress,
		})

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}

	s.publish(event)

	return result, nil
}

func (s *TournamentService) RegisterForTournament(caller string, tournamentID string) (*PlayerRegistered, error) {
	err := validateCaller(caller)
	if err != nil {
		return nil, err
	}

	var (
		result *PlayerRegistered
		event  journal.Event
	)

	err = s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		tournament, err := s.load(tx, tournamentID)
		if err != nil {
			return err
		}

		if tournament.IsFinalized {
			return ErrTournamentFinalized
		}

		if tournament.HasParticipant(caller) {
			return ErrAlreadyRegistered
		}

		if len(tournament.Participants) >= MaxParticipants {
			return fmt.Errorf("%w: %d participants", ErrCapacityExceeded, MaxParticipants)
		}

		err = rejectCustodyCaller(tx, caller)
		if err != nil {
			return err
		}

		if tournament.TotalPool > ^uint64(0)-tournament.EntryFee {
			return ErrPoolOverflow
		}

		err = ledger.Transfer(tx, caller, tournament.EscrowAddress, tournament.EntryFee)

		switch {
		case err == nil:
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
		default:
			return fmt.Errorf("failed to transfer entry fee: %w", err)
		}

		tournament.Participants = append(tournament.Participants, caller)
		tournament.TotalPool += tournament.EntryFee

		err = save(tx, tournament)
		if err != nil {
			return err
		}

		result = &PlayerRegistered{
			TournamentID: tournament.TournamentID,
			Player:       caller,
			EntryFee:     tournament.EntryFee,
			TotalPool:    tournament.TotalPool,
		}

		event, err = journal.Append(tx, journal.EventTypePlayerRegistered, tournamentID, result)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register for tournament: %w", err)
	}

	s.publish(event)

	return result, nil
}

func (s *TournamentService) FinalizeTournament(
	caller string,
	tournamentID string,
	firstPlace string,
	secondPlace string,
	thirdPlace string) (*TournamentFinalized, error) {
	var (
		result *TournamentFinalized
		event  journal.Event
	)

	err := s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		tournament, err := s.load(tx, tournamentID)
		if err != nil {
			return err
		}

		if tournament.IsFinalized {
			return ErrTournamentFinalized
		}

		if caller != tournament.Authority {
			return ErrUnauthorized
		}

		winners := [3]string{firstPlace, secondPlace, thirdPlace}

		for i, winner := range winners {
			if !tournament.HasParticipant(winner) {
				return fmt.Errorf("%w: place %d %q is not a participant", ErrInvalidInput, i+1, winner)
			}
		}

		payouts := ComputePayouts(tournament.TotalPool)

		tournament.Placements = make([]Placement, 0, len(winners))
		for i, winner := range winners {
			tournament.Placements = append(tournament.Placements, Placement{
				Rank:    i + 1,
				Winner:  winner,
				Amount:  payouts[i],
				Claimed: false,
			})
		}

		finalizedAt := time.Now().UTC()

		tournament.IsFinalized = true
		tournament.FinalizedAt = &finalizedAt

		err = save(tx, tournament)
		if err != nil {
			return err
		}

		result = &TournamentFinalized{
			TournamentID: tournament.TournamentID,
			FirstPlace:   firstPlace,
			SecondPlace:  secondPlace,
			ThirdPlace:   thirdPlace,
			FirstPayout:  payouts[0],
			SecondPayout: payouts[1],
			ThirdPayout:  payouts[2],
		}

		event, err = journal.Append(tx, journal.EventTypeTournamentFinalized, tournamentID, result)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finalize tournament: %w", err)
	}

	s.publish(event)

	return result, nil
}

// findPayout returns the first unclaimed placement owed to winner for amount.
func findPayout(tournament *Tournament, winner string, amount uint64) (int, error) {
	claimed := false

	for i, placement := range tournament.Placements {
		if placement.Winner != winner || placement.Amount != amount {
			continue
		}

		if !placement.Claimed {
			return i, nil
		}

		claimed = true
	}

	if claimed {
		return -1, ErrPayoutAlreadyClaimed
	}

	return -1, fmt.Errorf("%w: %s amount=%d", ErrPayoutNotFound, winner, amount)
}

func (s *TournamentService) ClaimPrize(caller string, tournamentID string, payoutAmount uint64) (*PrizeClaimed, error) {
	err := validateCaller(caller)
	if err != nil {
		return nil, err
	}

	var (
		result *PrizeClaimed
		event  journal.Event
	)

	err = s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		tournament, err := s.load(tx, tournamentID)
		if err != nil {
			return err
		}

		if !tournament.IsFinalized {
			return ErrTournamentNotFinalized
		}

		err = rejectCustodyCaller(tx, caller)
		if err != nil {
			return err
		}

		idx, err := findPayout(tournament, caller, payoutAmount)
		if err != nil {
			return err
		}

		err = ledger.Transfer(tx, tournament.EscrowAddress, caller, payoutAmount)

		switch {
		case err == nil:
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fmt.Errorf("%w: %w", ErrInsufficientEscrowBalance, err)
		default:
			return fmt.Errorf("failed to transfer prize: %w", err)
		}

		tournament.Placements[idx].Claimed = true

		err = save(tx, tournament)
		if err != nil {
			return err
		}

		result = &PrizeClaimed{
			TournamentID: tournament.TournamentID,
			Winner:       caller,
			Amount:       payoutAmount,
		}

		event, err = journal.Append(tx, journal.EventTypePrizeClaimed, tournamentID, result)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim prize: %w", err)
	}

	s.publish(event)

	return result, nil
}

func (s *TournamentService) GetTournament(tournamentID string) (*Tournament, error) {
	var result *Tournament

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		tournament, err := s.load(tx, tournamentID)
		result = tournament

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get tournament: %w", err)
	}

	return result, nil
}

func (s *TournamentService) ListTournaments() ([]Tournament, error) {
	result := []Tournament{}

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		bucket, err := records(tx)
		if err != nil {
			return err
		}

		return bucket.ForEach(func(_, value []byte) error {
			var tournament Tournament

			err := json.Unmarshal(value, &tournament)
			if err != nil {
				return fmt.Errorf("failed to unmarshal tournament: %w", err)
			}

			result = append(result, tournament)

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}

	return result, nil
}

// AuditEscrow checks escrow balance == total_pool - claimed payouts.
func (s *TournamentService) AuditEscrow(tournamentID string) (*EscrowAudit, error) {
	var result *EscrowAudit

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		tournament, err := s.load(tx, tournamentID)
		if err != nil {
			return err
		}

		balance, err := ledger.Balance(tx, tournament.EscrowAddress)
		if err != nil {
			return fmt.Errorf("failed to read escrow balance: %w", err)
		}

		claimed := tournament.ClaimedTotal()

		result = &EscrowAudit{
			TournamentID:  tournament.TournamentID,
			EscrowAddress: tournament.EscrowAddress,
			EscrowBalance: balance,
			TotalPool:     tournament.TotalPool,
			Claimed:       claimed,
		}

		if claimed <= tournament.TotalPool {
			result.Expected = tournament.TotalPool - claimed
			result.Balanced = balance == result.Expected
		}

		if tournament.IsFinalized {
			result.Unallocated = tournament.TotalPool - tournament.PayoutTotal()
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to audit escrow: %w", err)
	}

	return result, nil
}
