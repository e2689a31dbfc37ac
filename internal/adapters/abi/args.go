package abi

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ArgEncoder converts command line arguments to ABI encoded values. Arrays and tuples are
// given as JSON arrays, e.g. `["0x01...", "0x02..."]` or `[1, "name"]`.
type ArgEncoder struct{}

// NewArgEncoder creates a new ArgEncoder
func NewArgEncoder() *ArgEncoder {
	return &ArgEncoder{}
}

// EncodeArgs parses values against args and packs them
func (e *ArgEncoder) EncodeArgs(args abi.Arguments, values []string) ([]byte, error) {
	if len(values) != len(args) {
		return nil, fmt.Errorf("expected %d arguments (%s), got %d", len(args), describe(args), len(values))
	}
	parsed := make([]interface{}, len(args))
	for i, arg := range args {
		v, err := parseValue(arg.Type, values[i])
		if err != nil {
			name := arg.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("argument %s (%s): %w", name, arg.Type.String(), err)
		}
		parsed[i] = v.Interface()
	}
	return args.Pack(parsed...)
}

func describe(args abi.Arguments) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = strings.TrimSpace(a.Type.String() + " " + a.Name)
	}
	return strings.Join(parts, ", ")
}

func parseValue(t abi.Type, raw string) (reflect.Value, error) {
	raw = strings.TrimSpace(raw)
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(raw) {
			return reflect.Value{}, fmt.Errorf("invalid address %q", raw)
		}
		return reflect.ValueOf(common.HexToAddress(raw)), nil

	case abi.BoolTy:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil

	case abi.StringTy:
		return reflect.ValueOf(raw), nil

	case abi.BytesTy:
		b, err := hexutil.Decode(normalizeHex(raw))
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil

	case abi.FixedBytesTy:
		b, err := hexutil.Decode(normalizeHex(raw))
		if err != nil {
			return reflect.Value{}, err
		}
		if len(b) > t.Size {
			return reflect.Value{}, fmt.Errorf("value is %d bytes, expected at most %d", len(b), t.Size)
		}
		v := reflect.New(t.GetType()).Elem()
		reflect.Copy(v, reflect.ValueOf(b))
		return v, nil

	case abi.IntTy, abi.UintTy:
		return parseInteger(t, raw)

	case abi.SliceTy, abi.ArrayTy:
		items, err := splitJSON(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		if t.T == abi.ArrayTy && len(items) != t.Size {
			return reflect.Value{}, fmt.Errorf("expected %d elements, got %d", t.Size, len(items))
		}
		var v reflect.Value
		if t.T == abi.SliceTy {
			v = reflect.MakeSlice(t.GetType(), len(items), len(items))
		} else {
			v = reflect.New(t.GetType()).Elem()
		}
		for i, item := range items {
			elem, err := parseValue(*t.Elem, item)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			v.Index(i).Set(elem)
		}
		return v, nil

	case abi.TupleTy:
		items, err := splitJSON(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		if len(items) != len(t.TupleElems) {
			return reflect.Value{}, fmt.Errorf("expected %d tuple fields, got %d", len(t.TupleElems), len(items))
		}
		v := reflect.New(t.GetType()).Elem()
		for i, elemType := range t.TupleElems {
			elem, err := parseValue(*elemType, items[i])
			if err != nil {
				return reflect.Value{}, fmt.Errorf("field %s: %w", t.TupleRawNames[i], err)
			}
			v.Field(i).Set(elem)
		}
		return v, nil

	default:
		return reflect.Value{}, fmt.Errorf("unsupported type %s", t.String())
	}
}

func parseInteger(t abi.Type, raw string) (reflect.Value, error) {
	n, ok := new(big.Int).SetString(raw, 0)
	if !ok {
		return reflect.Value{}, fmt.Errorf("invalid integer %q", raw)
	}
	if t.T == abi.UintTy && n.Sign() < 0 {
		return reflect.Value{}, fmt.Errorf("negative value %s for unsigned type", raw)
	}
	if t.T == abi.UintTy && n.BitLen() > t.Size {
		return reflect.Value{}, fmt.Errorf("value %s overflows %s", raw, t.String())
	}
	if t.T == abi.IntTy {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return reflect.Value{}, fmt.Errorf("value %s overflows %s", raw, t.String())
		}
	}

	goType := t.GetType()
	if goType == reflect.TypeOf((*big.Int)(nil)) {
		return reflect.ValueOf(n), nil
	}
	v := reflect.New(goType).Elem()
	if t.T == abi.UintTy {
		v.SetUint(n.Uint64())
	} else {
		v.SetInt(n.Int64())
	}
	return v, nil
}

// splitJSON splits a JSON array into the raw text of its elements. Strings are unquoted.
func splitJSON(raw string) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("expected a JSON array: %w", err)
	}
	out := make([]string, len(items))
	for i, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out[i] = s
			continue
		}
		out[i] = string(item)
	}
	return out, nil
}

func normalizeHex(s string) string {
	if s == "" {
		return "0x"
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "0x" + s
	}
	return s
}
