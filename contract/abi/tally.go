package abi

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/tally-relay/entity"
)

const TallyEvent = "event Tally(uint256 indexed id, uint256 A, uint256 B)"

var ErrInvalidTallyLog = errors.New("invalid tally log")

var TallyEventID = TallyABI.Events["Tally"].ID

// DecodeTally turns a raw source log into a TallyEvent. Any log that is not an
// exact, canonical Tally emission of the given emitter is rejected.
func DecodeTally(log *types.Log, emitter common.Address) (*entity.TallyEvent, error) {
	if log.Removed {
		return nil, fmt.Errorf("log %s:%d was removed by reorg: %w", log.TxHash, log.Index, ErrInvalidTallyLog)
	}
	if log.Address != emitter {
		return nil, fmt.Errorf("log emitted by %s, expected %s: %w", log.Address, emitter, ErrInvalidTallyLog)
	}
	if len(log.Topics) != 2 || log.Topics[0] != TallyEventID {
		return nil, fmt.Errorf("log is not a Tally event: %w", ErrInvalidTallyLog)
	}
	if len(log.Data) != 64 {
		return nil, fmt.Errorf("log data has %d bytes, expected 64: %w", len(log.Data), ErrInvalidTallyLog)
	}
	event, values, err := TallyABI.ParseLog(log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err, ErrInvalidTallyLog)
	}
	if event != TallyEvent {
		return nil, fmt.Errorf("log is not a Tally event: %w", ErrInvalidTallyLog)
	}
	id, ok1 := values["id"].(*big.Int)
	votesA, ok2 := values["A"].(*big.Int)
	votesB, ok3 := values["B"].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("unexpected Tally argument types: %w", ErrInvalidTallyLog)
	}
	if !votesA.IsUint64() || !votesB.IsUint64() {
		return nil, fmt.Errorf("tally totals A=%s B=%s overflow uint64: %w", votesA, votesB, ErrInvalidTallyLog)
	}
	return &entity.TallyEvent{
		ElectionID:  id,
		VotesA:      votesA.Uint64(),
		VotesB:      votesB.Uint64(),
		BlockHash:   log.BlockHash,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
	}, nil
}
