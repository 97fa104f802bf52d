package tournament

import "time"

type Placement struct {
	Rank    int    `json:"rank"`
	Winner  string `json:"winner"`
	Amount  uint64 `json:"amount"`
	Claimed bool   `json:"claimed"`
}

type Tournament struct {
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`

	Authority    string   `json:"authority"`
	TournamentID string   `json:"tournament_id"`
	EntryFee     uint64   `json:"entry_fee"`
	TotalPool    uint64   `json:"total_pool"`
	Participants []string `json:"participants"`
	IsFinalized  bool     `json:"is_finalized"`

	EscrowAddress string `json:"escrow_address"`
	EscrowBump    uint8  `json:"escrow_bump"`

	Placements []Placement `json:"placements,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

func (t *Tournament) HasParticipant(address string) bool {
	for _, participant := range t.Participants {
		if participant == address {
			return true
		}
	}

	return false
}

func (t *Tournament) ClaimedTotal() uint64 {
	var total uint64

	for _, placement := range t.Placements {
		if placement.Claimed {
			total += placement.Amount
		}
	}

	return total
}

func (t *Tournament) PayoutTotal() uint64 {
	var total uint64

	for _, placement := range t.Placements {
		total += placement.Amount
	}

	return total
}

type TournamentCreated struct {
	TournamentID  string `json:"tournament_id"`
	Authority     string `json:"authority"`
	EntryFee      uint64 `json:"entry_fee"`
	EscrowAddress string `json:"escrow_address"`
}

type PlayerRegistered struct {
	TournamentID string `json:"tournament_id"`
	Player       string `json:"player"`
	EntryFee     uint64 `json:"entry_fee"`
	TotalPool    uint64 `json:"total_pool"`
}

type TournamentFinalized struct {
	TournamentID string `json:"tournament_id"`
	FirstPlace   string `json:"first_place"`
	SecondPlace  string `json:"second_place"`
	ThirdPlace   string `json:"third_place"`
	FirstPayout  uint64 `json:"first_payout"`
	SecondPayout uint64 `json:"second_payout"`
	ThirdPayout  uint64 `json:"third_payout"`
}

type PrizeClaimed struct {
	TournamentID string `json:"tournament_id"`
	Winner       string `json:"winner"`
	Amount       uint64 `json:"amount"`
}

// EscrowAudit compares the escrow balance with what the record says it should hold.
type EscrowAudit struct {
	TournamentID  string `json:"tournament_id"`
	EscrowAddress string `json:"escrow_address"`
	EscrowBalance uint64 `json:"escrow_balance"`
	TotalPool     uint64 `json:"total_pool"`
	Claimed       uint64 `json:"claimed"`
	Expected      uint64 `json:"expected"`
	Unallocated   uint64 `json:"unallocated"`
	Balanced      bool   `json:"balanced"`
}

type CreateRequest struct {
	TournamentID string `json:"tournament_id"`
	EntryFee     uint64 `json:"entry_fee"`
}

type FinalizeRequest struct {
	FirstPlace  string `json:"first_place"`
	SecondPlace string `json:"second_place"`
	ThirdPlace  string `json:"third_place"`
}

type ClaimRequest struct {
	PayoutAmount uint64 `json:"payout_amount"`
}
