package relay

type BlocksRange struct {
	From uint64
	To   uint64
}

// SplitBlockRange cuts [fromBlock, toBlock] into consecutive ranges of at most
// maxSize blocks. A zero maxSize keeps the range whole.
func SplitBlockRange(fromBlock uint64, toBlock uint64, maxSize uint64) []*BlocksRange {
	if maxSize == 0 {
		maxSize = toBlock - fromBlock + 1
	}
	batches := make([]*BlocksRange, 0, 10)
	for fromBlock <= toBlock {
		batchToBlock := fromBlock + maxSize - 1
		if batchToBlock > toBlock || batchToBlock < fromBlock {
			batchToBlock = toBlock
		}
		batches = append(batches, &BlocksRange{
			From: fromBlock,
			To:   batchToBlock,
		})
		if batchToBlock == toBlock {
			break
		}
		fromBlock = batchToBlock + 1
	}
	return batches
}
