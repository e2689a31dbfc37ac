package abi

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func arguments(t *testing.T, types ...string) abi.Arguments {
	t.Helper()
	var args abi.Arguments
	for _, typ := range types {
		ty, err := abi.NewType(typ, "", nil)
		require.NoError(t, err)
		args = append(args, abi.Argument{Type: ty})
	}
	return args
}

func TestArgEncoder_EncodeArgs(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	tests := []struct {
		name    string
		types   []string
		values  []string
		want    []interface{}
		wantErr string
	}{
		{
			name:   "address and uint256",
			types:  []string{"address", "uint256"},
			values: []string{owner.Hex(), "42"},
			want:   []interface{}{owner, big.NewInt(42)},
		},
		{
			name:   "hex integer and bool",
			types:  []string{"uint8", "bool"},
			values: []string{"0x10", "true"},
			want:   []interface{}{uint8(16), true},
		},
		{
			name:   "string and bytes",
			types:  []string{"string", "bytes"},
			values: []string{"hello", "0xdeadbeef"},
			want:   []interface{}{"hello", []byte{0xde, 0xad, 0xbe, 0xef}},
		},
		{
			name:   "address array",
			types:  []string{"address[]"},
			values: []string{`["` + owner.Hex() + `"]`},
			want:   []interface{}{[]common.Address{owner}},
		},
		{
			name:   "negative int",
			types:  []string{"int16"},
			values: []string{"-300"},
			want:   []interface{}{int16(-300)},
		},
		{
			name:    "wrong count",
			types:   []string{"address"},
			values:  []string{},
			wantErr: "expected 1 arguments",
		},
		{
			name:    "bad address",
			types:   []string{"address"},
			values:  []string{"0x1234"},
			wantErr: "invalid address",
		},
		{
			name:    "overflow",
			types:   []string{"uint8"},
			values:  []string{"256"},
			wantErr: "overflows uint8",
		},
		{
			name:    "signed overflow",
			types:   []string{"int8"},
			values:  []string{"128"},
			wantErr: "overflows int8",
		},
		{
			name:    "negative unsigned",
			types:   []string{"uint256"},
			values:  []string{"-1"},
			wantErr: "negative value",
		},
	}

	enc := NewArgEncoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := arguments(t, tt.types...)
			got, err := enc.EncodeArgs(args, tt.values)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			want, err := args.Pack(tt.want...)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestArgEncoder_Empty(t *testing.T) {
	got, err := NewArgEncoder().EncodeArgs(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
