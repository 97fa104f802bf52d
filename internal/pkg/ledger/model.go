package ledger

type Account struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

type MintRequest struct {
	Amount uint64 `json:"amount"`
}
