package ethclient

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestToFilterArg(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0x01")
	topic := common.HexToHash("0x02")
	arg, err := toFilterArg(ethereum.FilterQuery{
		FromBlock: big.NewInt(10),
		ToBlock:   big.NewInt(20),
		Addresses: []common.Address{addr},
		Topics:    [][]common.Hash{{topic}},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{
		"address":   []common.Address{addr},
		"topics":    [][]common.Hash{{topic}},
		"fromBlock": "0xa",
		"toBlock":   "0x14",
	}, arg)

	arg, err = toFilterArg(ethereum.FilterQuery{ToBlock: big.NewInt(1)})
	require.NoError(t, err)
	require.Equal(t, "0x0", arg.(map[string]interface{})["fromBlock"])
}

func TestToFilterArg_Invalid(t *testing.T) {
	t.Parallel()

	hash := common.HexToHash("0x01")
	for _, q := range []ethereum.FilterQuery{
		{BlockHash: &hash, ToBlock: big.NewInt(1)},
		{FromBlock: big.NewInt(1)},
		{ToBlock: big.NewInt(0)},
	} {
		_, err := toFilterArg(q)
		require.True(t, errors.Is(err, ErrInvalidLogsQuery))
	}
}
