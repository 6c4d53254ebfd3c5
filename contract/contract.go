package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/tally-relay/contract/abi"
	"github.com/omni/tally-relay/ethclient"
)

type Contract struct {
	Address common.Address
	client  ethclient.Client
	abi     abi.ABI
	safe    bool
}

// NewContract binds an event emitter. With safe set, log queries also verify the
// node is synced up to the requested block.
func NewContract(client ethclient.Client, addr common.Address, contractABI abi.ABI, safe bool) *Contract {
	return &Contract{
		Address: addr,
		client:  client,
		abi:     contractABI,
		safe:    safe,
	}
}

// FilterEvents returns the logs of the named event in the inclusive block range [from, to].
func (c *Contract) FilterEvents(ctx context.Context, eventName string, from, to uint64) ([]types.Log, error) {
	event, ok := c.abi.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("event %s is not in contract abi: %w", eventName, abi.ErrInvalidEvent)
	}
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.Address},
		Topics:    [][]common.Hash{{event.ID}},
	}
	var logs []types.Log
	var err error
	if c.safe {
		logs, err = c.client.FilterLogsSafe(ctx, q)
	} else {
		logs, err = c.client.FilterLogs(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("can't get %s logs in range [%d, %d]: %w", eventName, from, to, err)
	}
	return logs, nil
}
