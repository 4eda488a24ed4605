package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransactionHash(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{name: "short", raw: "0x1", want: "0x0000000000000000000000000000000000000000000000000000000000000001"},
		{name: "upper prefix and digits", raw: "0X0ABC", want: "0x0000000000000000000000000000000000000000000000000000000000000abc"},
		{name: "largest felt", raw: "0x800000000000011000000000000000000000000000000000000000000000000", want: "0x0800000000000011000000000000000000000000000000000000000000000000"},
		{name: "missing prefix", raw: "1234", wantErr: ErrMissingPrefix},
		{name: "empty digits", raw: "0x", wantErr: ErrInvalidHex},
		{name: "too long", raw: "0x" + "1" + "0000000000000000000000000000000000000000000000000000000000000000", wantErr: ErrInvalidHex},
		{name: "not hex", raw: "0xzz", wantErr: ErrInvalidHex},
		{name: "field modulus", raw: "0x800000000000011000000000000000000000000000000000000000000000001", wantErr: ErrFeltOverflow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hash, err := ParseTransactionHash(tc.raw)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, hash.String())
		})
	}
}

func TestTransactionHash_JSON(t *testing.T) {
	var payload struct {
		Hash TransactionHash `json:"transaction_hash"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"transaction_hash":"0xdeadbeef"}`), &payload))
	assert.Equal(t, "0x00000000000000000000000000000000000000000000000000000000deadbeef", payload.Hash.String())

	err := json.Unmarshal([]byte(`{"transaction_hash":"deadbeef"}`), &payload)
	assert.ErrorIs(t, err, ErrMissingPrefix)
}

func TestTransactionStatus_Tokens(t *testing.T) {
	for _, status := range TransactionStatuses {
		encoded, err := json.Marshal(status)
		require.NoError(t, err)
		assert.Equal(t, `"`+string(status)+`"`, string(encoded))

		parsed, err := ParseTransactionStatus(string(status))
		require.NoError(t, err)
		assert.Equal(t, status, parsed)
	}

	_, err := ParseTransactionStatus("accepted_on_l1")
	assert.Error(t, err)
	_, err = json.Marshal(TransactionStatus("BOGUS"))
	assert.Error(t, err)
}

func TestPendingBlock_Contains(t *testing.T) {
	a, err := ParseTransactionHash("0xa")
	require.NoError(t, err)
	b, err := ParseTransactionHash("0xb")
	require.NoError(t, err)

	block := PendingBlock{Transactions: []TransactionHash{a}}
	assert.True(t, block.Contains(a))
	assert.False(t, block.Contains(b))
	assert.False(t, PendingBlock{}.Contains(a))
}
