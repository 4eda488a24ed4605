package domain

// GatewayTransaction is the gateway's view of a single transaction.
type GatewayTransaction struct {
	Hash        TransactionHash
	Status      GatewayStatus
	BlockHash   *BlockHash
	BlockNumber *uint64
}
