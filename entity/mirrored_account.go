package entity

import "github.com/gagliardetto/solana-go"

// MirroredAccount is the destination chain election account written by the relay.
type MirroredAccount struct {
	Address   solana.PublicKey
	Authority solana.PublicKey
	Metadata  [32]byte
	VotesA    uint64
	VotesB    uint64
	Finalized bool
}

func (a *MirroredAccount) HasTotals(votesA, votesB uint64) bool {
	return a.VotesA == votesA && a.VotesB == votesB
}

// BridgeReceipt describes a successfully mirrored tally.
type BridgeReceipt struct {
	Account solana.PublicKey
	// Signature is empty when the account already held the same finalized totals.
	Signature string
	Attempts  uint
}
