package domain

// TransactionHash identifies a transaction. It is a field element rendered as
// 0x-prefixed hex.
type TransactionHash [32]byte

// BlockHash identifies a block.
type BlockHash [32]byte

func ParseTransactionHash(raw string) (TransactionHash, error) {
	value, err := parseFelt(raw)
	if err != nil {
		return TransactionHash{}, err
	}
	return TransactionHash(value), nil
}

func (h TransactionHash) String() string {
	return formatFelt(h)
}

func (h TransactionHash) IsZero() bool {
	return h == TransactionHash{}
}

func (h TransactionHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *TransactionHash) UnmarshalText(text []byte) error {
	parsed, err := ParseTransactionHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func ParseBlockHash(raw string) (BlockHash, error) {
	value, err := parseFelt(raw)
	if err != nil {
		return BlockHash{}, err
	}
	return BlockHash(value), nil
}

func (h BlockHash) String() string {
	return formatFelt(h)
}

func (h BlockHash) IsZero() bool {
	return h == BlockHash{}
}

func (h BlockHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *BlockHash) UnmarshalText(text []byte) error {
	parsed, err := ParseBlockHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
