package tezos

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"blockwatch.cc/tzgo/micheline"
	"github.com/ZilDuck/zerosum-market-resolver/internal/contract"
	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
)

func mismatch(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), contract.ErrShapeMismatch)
}

// EncodeObject encodes named arguments against typ. Missing option fields become None.
func EncodeObject(typ micheline.Prim, args map[string]interface{}) (micheline.Prim, error) {
	if typ.OpCode == micheline.T_UNIT {
		return newPrim(micheline.D_UNIT), nil
	}

	ls := leaves(typ)
	if len(ls) == 1 && !isPairType(typ) {
		// single argument entrypoints accept the bare value or a one field object
		if v, ok := args[ls[0].name]; ok {
			return encodeValue(ls[0].typ, v)
		}
		if len(args) == 1 {
			for _, v := range args {
				return encodeValue(ls[0].typ, v)
			}
		}
		return micheline.Prim{}, mismatch("missing argument %s", ls[0].name)
	}

	for name := range args {
		if !hasLeaf(ls, name) {
			return micheline.Prim{}, mismatch("unexpected argument %s", name)
		}
	}

	values := make([]micheline.Prim, 0, len(ls))
	for _, l := range ls {
		v, ok := args[l.name]
		if !ok {
			if l.typ.OpCode != micheline.T_OPTION {
				return micheline.Prim{}, mismatch("missing argument %s", l.name)
			}
			v = nil
		}
		p, err := encodeValue(l.typ, v)
		if err != nil {
			return micheline.Prim{}, fmt.Errorf("%s: %w", l.name, err)
		}
		values = append(values, p)
	}

	return rebuildPair(typ, values), nil
}

// EncodePositional encodes arguments given in flattened leaf order.
func EncodePositional(typ micheline.Prim, args []interface{}) (micheline.Prim, error) {
	if typ.OpCode == micheline.T_UNIT && len(args) == 0 {
		return newPrim(micheline.D_UNIT), nil
	}

	ls := leaves(typ)
	if len(ls) != len(args) {
		return micheline.Prim{}, mismatch("expected %d arguments, got %d", len(ls), len(args))
	}

	values := make([]micheline.Prim, 0, len(ls))
	for i, l := range ls {
		p, err := encodeValue(l.typ, args[i])
		if err != nil {
			return micheline.Prim{}, fmt.Errorf("argument %d: %w", i, err)
		}
		values = append(values, p)
	}

	if len(values) == 1 {
		return values[0], nil
	}
	return rebuildPair(typ, values), nil
}

func hasLeaf(ls []leaf, name string) bool {
	for _, l := range ls {
		if l.name == name {
			return true
		}
	}
	return false
}

func encodeValue(typ micheline.Prim, v interface{}) (micheline.Prim, error) {
	switch typ.OpCode {
	case micheline.T_NAT, micheline.T_MUTEZ:
		n, err := toBig(v)
		if err != nil {
			return micheline.Prim{}, err
		}
		if n.Sign() < 0 {
			return micheline.Prim{}, mismatch("negative value %s for %s", n, typ.OpCode)
		}
		return micheline.Prim{Type: micheline.PrimInt, Int: n}, nil

	case micheline.T_INT, micheline.T_TIMESTAMP:
		if s, ok := v.(string); ok && typ.OpCode == micheline.T_TIMESTAMP {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				return micheline.Prim{Type: micheline.PrimString, String: s}, nil
			}
		}
		n, err := toBig(v)
		if err != nil {
			return micheline.Prim{}, err
		}
		return micheline.Prim{Type: micheline.PrimInt, Int: n}, nil

	case micheline.T_STRING, micheline.T_ADDRESS, micheline.T_KEY_HASH, micheline.T_KEY,
		micheline.T_SIGNATURE, micheline.T_CHAIN_ID, micheline.T_CONTRACT:
		s, ok := v.(string)
		if !ok {
			return micheline.Prim{}, mismatch("expected string for %s, got %T", typ.OpCode, v)
		}
		return micheline.Prim{Type: micheline.PrimString, String: s}, nil

	case micheline.T_BYTES:
		switch b := v.(type) {
		case []byte:
			return micheline.Prim{Type: micheline.PrimBytes, Bytes: b}, nil
		case string:
			raw, err := hex.DecodeString(strings.TrimPrefix(b, "0x"))
			if err != nil {
				return micheline.Prim{}, mismatch("bad hex bytes: %v", err)
			}
			return micheline.Prim{Type: micheline.PrimBytes, Bytes: raw}, nil
		}
		return micheline.Prim{}, mismatch("expected bytes, got %T", v)

	case micheline.T_BOOL:
		b, ok := v.(bool)
		if !ok {
			return micheline.Prim{}, mismatch("expected bool, got %T", v)
		}
		if b {
			return newPrim(micheline.D_TRUE), nil
		}
		return newPrim(micheline.D_FALSE), nil

	case micheline.T_UNIT:
		return newPrim(micheline.D_UNIT), nil

	case micheline.T_OPTION:
		if v == nil {
			return newPrim(micheline.D_NONE), nil
		}
		inner, err := encodeValue(typ.Args[0], v)
		if err != nil {
			return micheline.Prim{}, err
		}
		return newPrim(micheline.D_SOME, inner), nil

	case micheline.T_LIST, micheline.T_SET:
		items, err := toSlice(v)
		if err != nil {
			return micheline.Prim{}, err
		}
		out := make([]micheline.Prim, 0, len(items))
		for _, item := range items {
			p, err := encodeValue(typ.Args[0], item)
			if err != nil {
				return micheline.Prim{}, err
			}
			out = append(out, p)
		}
		return newSeq(out...), nil

	case micheline.T_MAP, micheline.T_BIG_MAP:
		m, ok := toMap(v)
		if !ok {
			return micheline.Prim{}, mismatch("expected map, got %T", v)
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]micheline.Prim, 0, len(m))
		for _, k := range keys {
			kp, err := encodeValue(typ.Args[0], k)
			if err != nil {
				return micheline.Prim{}, err
			}
			vp, err := encodeValue(typ.Args[1], m[k])
			if err != nil {
				return micheline.Prim{}, err
			}
			out = append(out, newPrim(micheline.D_ELT, kp, vp))
		}
		return newSeq(out...), nil

	case micheline.T_PAIR:
		if m, ok := toMap(v); ok {
			p, err := EncodeObject(typ, m)
			if err != nil && isSplit(m) {
				return encodeSplit(typ, m)
			}
			return p, err
		}
		if items, err := toSlice(v); err == nil {
			return EncodePositional(typ, items)
		}
		return micheline.Prim{}, mismatch("expected record, got %T", v)

	case micheline.T_OR:
		m, ok := toMap(v)
		if !ok || len(m) != 1 {
			return micheline.Prim{}, mismatch("expected single branch for or, got %T", v)
		}
		for k, inner := range m {
			branch := 0
			if k == "1" || (len(typ.Args) > 1 && k == fieldName(typ.Args[1])) {
				branch = 1
			} else if k != "0" && k != fieldName(typ.Args[0]) {
				return micheline.Prim{}, mismatch("unknown branch %s", k)
			}
			p, err := encodeValue(typ.Args[branch], inner)
			if err != nil {
				return micheline.Prim{}, err
			}
			if branch == 0 {
				return newPrim(micheline.D_LEFT, p), nil
			}
			return newPrim(micheline.D_RIGHT, p), nil
		}
	}

	return micheline.Prim{}, mismatch("unsupported type %s", typ.OpCode)
}

func toBig(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case float64:
		if math.IsInf(n, 0) || n != math.Trunc(n) {
			return nil, mismatch("non integer number %v", n)
		}
		if n < math.MinInt64 || n >= math.MaxInt64 {
			return nil, mismatch("number out of range %v", n)
		}
		return big.NewInt(int64(n)), nil
	case *big.Int:
		return new(big.Int).Set(n), nil
	case json.Number:
		return parseBig(n.String())
	case string:
		return parseBig(n)
	}
	return nil, mismatch("expected number, got %T", v)
}

func parseBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, mismatch("not a number %q", s)
	}
	return n, nil
}

func toSlice(v interface{}) ([]interface{}, error) {
	switch s := v.(type) {
	case []interface{}:
		return s, nil
	case []string:
		out := make([]interface{}, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, nil
	case []uint64:
		out := make([]interface{}, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, nil
	case []entity.Split:
		out := make([]interface{}, len(s))
		for i := range s {
			out[i] = map[string]interface{}{"address": s[i].Address, "percent": s[i].PercentBasisPoints}
		}
		return out, nil
	case nil:
		return []interface{}{}, nil
	}
	return nil, mismatch("expected list, got %T", v)
}

func toMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case entity.Params:
		return m, true
	}
	return nil, false
}

func isSplit(m map[string]interface{}) bool {
	_, hasAddress := m["address"]
	_, hasPercent := m["percent"]
	return len(m) == 2 && hasAddress && hasPercent
}

// encodeSplit places a split record into a two field pair whose annotations
// differ from address/percent, matching fields by type.
func encodeSplit(typ micheline.Prim, m map[string]interface{}) (micheline.Prim, error) {
	p, err := EncodePositional(typ, []interface{}{m["address"], m["percent"]})
	if err == nil {
		return p, nil
	}
	return EncodePositional(typ, []interface{}{m["percent"], m["address"]})
}
