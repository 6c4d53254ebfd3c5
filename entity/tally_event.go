package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidTallyPayload = errors.New("invalid tally payload")

// TallyEvent is a fully decoded Tally log of the source emitter.
type TallyEvent struct {
	ElectionID  *big.Int
	VotesA      uint64
	VotesB      uint64
	BlockHash   common.Hash
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// Seed is the destination account derivation seed.
func (e *TallyEvent) Seed() []byte {
	return e.BlockHash.Bytes()
}

// Metadata is the 32-byte big-endian election id stored on the mirror account.
func (e *TallyEvent) Metadata() [32]byte {
	return common.BigToHash(e.ElectionID)
}

type tallyPayload struct {
	ElectionID  string      `json:"election_id"`
	A           uint64      `json:"A,string"`
	B           uint64      `json:"B,string"`
	BlockHash   common.Hash `json:"block_hash"`
	BlockNumber uint64      `json:"block_number"`
	TxHash      common.Hash `json:"tx_hash"`
	LogIndex    uint        `json:"log_index"`
}

func (e *TallyEvent) MarshalPayload() ([]byte, error) {
	if e.ElectionID == nil {
		return nil, fmt.Errorf("election id is missing: %w", ErrInvalidTallyPayload)
	}
	raw, err := json.Marshal(&tallyPayload{
		ElectionID:  e.ElectionID.String(),
		A:           e.VotesA,
		B:           e.VotesB,
		BlockHash:   e.BlockHash,
		BlockNumber: e.BlockNumber,
		TxHash:      e.TxHash,
		LogIndex:    e.LogIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("can't marshal tally payload: %w", err)
	}
	return raw, nil
}

func UnmarshalTallyPayload(raw []byte) (*TallyEvent, error) {
	var p tallyPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("can't unmarshal tally payload: %w", err)
	}
	id, ok := new(big.Int).SetString(p.ElectionID, 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("election id %q is not a decimal number: %w", p.ElectionID, ErrInvalidTallyPayload)
	}
	if p.BlockHash == (common.Hash{}) {
		return nil, fmt.Errorf("block hash is missing: %w", ErrInvalidTallyPayload)
	}
	return &TallyEvent{
		ElectionID:  id,
		VotesA:      p.A,
		VotesB:      p.B,
		BlockHash:   p.BlockHash,
		BlockNumber: p.BlockNumber,
		TxHash:      p.TxHash,
		LogIndex:    p.LogIndex,
	}, nil
}
