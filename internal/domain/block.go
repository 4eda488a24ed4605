package domain

// BlockReference identifies a block stored in the ledger.
type BlockReference struct {
	Number uint64
	Hash   BlockHash
}

// Block is a block as reported by the gateway.
type Block struct {
	Number       uint64
	Hash         BlockHash
	ParentHash   BlockHash
	Timestamp    uint64
	Status       GatewayStatus
	Transactions []TransactionHash
}

// PendingBlock is a snapshot of the transactions waiting for the next block.
type PendingBlock struct {
	ParentHash   BlockHash
	Timestamp    uint64
	Transactions []TransactionHash
}

func (b PendingBlock) Contains(hash TransactionHash) bool {
	for _, tx := range b.Transactions {
		if tx == hash {
			return true
		}
	}
	return false
}
