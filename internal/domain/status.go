package domain

import "fmt"

// TransactionStatus is the finality status reported for a transaction.
type TransactionStatus string

const (
	StatusNotReceived  TransactionStatus = "NOT_RECEIVED"
	StatusReceived     TransactionStatus = "RECEIVED"
	StatusPending      TransactionStatus = "PENDING"
	StatusRejected     TransactionStatus = "REJECTED"
	StatusAcceptedOnL1 TransactionStatus = "ACCEPTED_ON_L1"
	StatusAcceptedOnL2 TransactionStatus = "ACCEPTED_ON_L2"
	StatusReverted     TransactionStatus = "REVERTED"
	StatusAborted      TransactionStatus = "ABORTED"
)

// TransactionStatuses lists every status.
var TransactionStatuses = []TransactionStatus{
	StatusNotReceived,
	StatusReceived,
	StatusPending,
	StatusRejected,
	StatusAcceptedOnL1,
	StatusAcceptedOnL2,
	StatusReverted,
	StatusAborted,
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusNotReceived, StatusReceived, StatusPending, StatusRejected,
		StatusAcceptedOnL1, StatusAcceptedOnL2, StatusReverted, StatusAborted:
		return true
	}
	return false
}

func (s TransactionStatus) String() string {
	return string(s)
}

func (s TransactionStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown transaction status %q", string(s))
	}
	return []byte(s), nil
}

func (s *TransactionStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseTransactionStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	status := TransactionStatus(raw)
	if !status.Valid() {
		return "", fmt.Errorf("unknown transaction status %q", raw)
	}
	return status, nil
}

// GatewayStatus is the status token as reported by the remote gateway.
type GatewayStatus string

const (
	GatewayNotReceived  GatewayStatus = "NOT_RECEIVED"
	GatewayReceived     GatewayStatus = "RECEIVED"
	GatewayPending      GatewayStatus = "PENDING"
	GatewayRejected     GatewayStatus = "REJECTED"
	GatewayAcceptedOnL1 GatewayStatus = "ACCEPTED_ON_L1"
	GatewayAcceptedOnL2 GatewayStatus = "ACCEPTED_ON_L2"
	GatewayReverted     GatewayStatus = "REVERTED"
	GatewayAborted      GatewayStatus = "ABORTED"
)
