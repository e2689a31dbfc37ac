package abi

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"
)

// proxyErrors are the custom errors raised by the OpenZeppelin proxy and upgradeable contracts
const proxyErrors = `[
	{"type":"error","name":"OwnableUnauthorizedAccount","inputs":[{"name":"account","type":"address"}]},
	{"type":"error","name":"OwnableInvalidOwner","inputs":[{"name":"owner","type":"address"}]},
	{"type":"error","name":"InvalidInitialization","inputs":[]},
	{"type":"error","name":"NotInitializing","inputs":[]},
	{"type":"error","name":"ERC1967InvalidImplementation","inputs":[{"name":"implementation","type":"address"}]},
	{"type":"error","name":"ERC1967InvalidAdmin","inputs":[{"name":"admin","type":"address"}]},
	{"type":"error","name":"ERC1967InvalidBeacon","inputs":[{"name":"beacon","type":"address"}]},
	{"type":"error","name":"ERC1967NonPayable","inputs":[]},
	{"type":"error","name":"BeaconInvalidImplementation","inputs":[{"name":"implementation","type":"address"}]},
	{"type":"error","name":"UUPSUnauthorizedCallContext","inputs":[]},
	{"type":"error","name":"UUPSUnsupportedProxiableUUID","inputs":[{"name":"slot","type":"bytes32"}]},
	{"type":"error","name":"ProxyDeniedAdminAccess","inputs":[]},
	{"type":"error","name":"AddressEmptyCode","inputs":[{"name":"target","type":"address"}]},
	{"type":"error","name":"FailedInnerCall","inputs":[]},
	{"type":"error","name":"FailedCall","inputs":[]}
]`

var knownErrors = mustParse(proxyErrors)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// RevertReason decodes the revert data carried by an RPC error. It returns "" when the
// error has no revert data.
func RevertReason(err error) string {
	// batched calls report one error per call
	var callErrs w3.CallErrors
	if errors.As(err, &callErrs) {
		for _, e := range callErrs {
			if e == nil {
				continue
			}
			if reason := RevertReason(e); reason != "" {
				return reason
			}
		}
	}

	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return ""
	}
	raw, ok := dataErr.ErrorData().(string)
	if !ok {
		return ""
	}
	data, decodeErr := hexutil.Decode(raw)
	if decodeErr != nil {
		return ""
	}
	return DecodeRevert(data)
}

// DecodeRevert formats revert data as Error(string), Panic(uint256) or a known custom error
func DecodeRevert(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason
	}
	for _, e := range knownErrors.Errors {
		if !bytes.Equal(data[:4], e.ID[:4]) {
			continue
		}
		values, err := e.Unpack(data)
		if err != nil {
			break
		}
		args, _ := values.([]interface{})
		parts := make([]string, 0, len(args))
		for _, a := range args {
			parts = append(parts, formatValue(a))
		}
		return fmt.Sprintf("%s(%s)", e.Name, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("unknown error %s", hexutil.Encode(data[:4]))
}

func formatValue(v any) string {
	switch val := v.(type) {
	case [32]byte:
		return hexutil.Encode(val[:])
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
