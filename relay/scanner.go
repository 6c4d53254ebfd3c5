package relay

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/tally-relay/contract"
	"github.com/omni/tally-relay/contract/abi"
	"github.com/omni/tally-relay/entity"
	"github.com/omni/tally-relay/ethclient"
)

type EventScanner interface {
	Scan(ctx context.Context, fromBlock, toBlock uint64) ([]*entity.TallyEvent, error)
}

// Scanner reads Tally events of a single emitter. It never retries and never
// returns a partially decoded batch.
type Scanner struct {
	emitter *contract.Contract
}

func NewScanner(client ethclient.Client, emitter common.Address, safe bool) *Scanner {
	return &Scanner{
		emitter: contract.NewContract(client, emitter, abi.TallyABI, safe),
	}
}

func (s *Scanner) Scan(ctx context.Context, fromBlock, toBlock uint64) ([]*entity.TallyEvent, error) {
	if fromBlock > toBlock {
		return nil, fmt.Errorf("invalid block range [%d, %d]", fromBlock, toBlock)
	}
	logs, err := s.emitter.FilterEvents(ctx, "Tally", fromBlock, toBlock)
	if err != nil {
		return nil, err
	}
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	events := make([]*entity.TallyEvent, 0, len(logs))
	for i := range logs {
		event, err := abi.DecodeTally(&logs[i], s.emitter.Address)
		if err != nil {
			return nil, fmt.Errorf("can't decode log %s:%d in block %d: %w", logs[i].TxHash, logs[i].Index, logs[i].BlockNumber, err)
		}
		events = append(events, event)
	}
	return events, nil
}
