package public

import (
	"github.com/powledger/node/foundation/blockchain/database"
)

type balance struct {
	Account string `json:"account"`
	Name    string `json:"name"`
	Balance uint64 `json:"balance"`
}

type balances struct {
	LatestBlock string    `json:"latest_block"`
	Uncommitted int       `json:"uncommitted"`
	Balances    []balance `json:"balances"`
}

type tx struct {
	From      string `json:"from"`
	FromName  string `json:"from_name"`
	To        string `json:"to"`
	ToName    string `json:"to_name"`
	Amount    uint64 `json:"amount"`
	Signature string `json:"signature"`
}

// submitTx is a transfer from an account whose key the node holds. Accounts
// can be given by name.
type submitTx struct {
	From   string `json:"from"`
	To     string `json:"to" validate:"required"`
	Amount uint64 `json:"amount" validate:"required"`
}

// signedTx is a transfer signed by a wallet.
type signedTx struct {
	From      string `json:"from" validate:"required,address"`
	To        string `json:"to" validate:"required,address"`
	Amount    uint64 `json:"amount" validate:"required"`
	Signature string `json:"signature" validate:"required,hexadecimal"`
}

type addPeer struct {
	Host string `json:"host" validate:"required"`
}

type miningStatus struct {
	Mining bool   `json:"mining"`
	Miner  string `json:"miner"`
}

type consensus struct {
	Result string `json:"result"`
	Length int    `json:"chain_size"`
}

// toTx converts a ledger transaction for display.
func toTx(lookup func(string) string, t database.Tx) tx {
	return tx{
		From:      t.From,
		FromName:  lookup(t.From),
		To:        t.To,
		ToName:    lookup(t.To),
		Amount:    t.Amount,
		Signature: t.Signature.String(),
	}
}
