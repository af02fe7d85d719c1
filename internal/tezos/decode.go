package tezos

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"blockwatch.cc/tzgo/micheline"
	"blockwatch.cc/tzgo/tezos"
)

// Decode converts a Micheline value of type typ into plain Go values: numbers
// become decimal strings, records become maps keyed by field name or position,
// lists become slices, maps become string keyed maps, options nil or the value.
func Decode(typ, val micheline.Prim) (interface{}, error) {
	switch typ.OpCode {
	case micheline.T_NAT, micheline.T_INT, micheline.T_MUTEZ:
		if val.Type != micheline.PrimInt || val.Int == nil {
			return nil, fmt.Errorf("expected int for %s", typ.OpCode)
		}
		return val.Int.String(), nil

	case micheline.T_TIMESTAMP:
		if val.Type == micheline.PrimInt && val.Int != nil {
			return time.Unix(val.Int.Int64(), 0).UTC().Format(time.RFC3339), nil
		}
		if val.Type == micheline.PrimString {
			return val.String, nil
		}
		return nil, fmt.Errorf("expected timestamp")

	case micheline.T_ADDRESS, micheline.T_CONTRACT:
		if val.Type == micheline.PrimString {
			return val.String, nil
		}
		if val.Type == micheline.PrimBytes {
			var a tezos.Address
			if err := a.Decode(val.Bytes); err != nil {
				return nil, err
			}
			return a.String(), nil
		}
		return nil, fmt.Errorf("expected address")

	case micheline.T_STRING, micheline.T_KEY_HASH, micheline.T_KEY, micheline.T_SIGNATURE, micheline.T_CHAIN_ID:
		if val.Type == micheline.PrimString {
			return val.String, nil
		}
		if val.Type == micheline.PrimBytes {
			return hex.EncodeToString(val.Bytes), nil
		}
		return nil, fmt.Errorf("expected string for %s", typ.OpCode)

	case micheline.T_BYTES:
		if val.Type != micheline.PrimBytes {
			return nil, fmt.Errorf("expected bytes")
		}
		return hex.EncodeToString(val.Bytes), nil

	case micheline.T_BOOL:
		switch {
		case isOpCode(val, "True"):
			return true, nil
		case isOpCode(val, "False"):
			return false, nil
		}
		return nil, fmt.Errorf("expected bool")

	case micheline.T_UNIT:
		return nil, nil

	case micheline.T_OPTION:
		if isOpCode(val, "None") {
			return nil, nil
		}
		if isOpCode(val, "Some") && len(val.Args) == 1 {
			return Decode(typ.Args[0], val.Args[0])
		}
		return nil, fmt.Errorf("expected option")

	case micheline.T_LIST, micheline.T_SET:
		if val.Type != micheline.PrimSequence {
			return nil, fmt.Errorf("expected sequence for %s", typ.OpCode)
		}
		out := make([]interface{}, 0, len(val.Args))
		for _, item := range val.Args {
			v, err := Decode(typ.Args[0], item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case micheline.T_MAP, micheline.T_BIG_MAP:
		if val.Type == micheline.PrimInt && val.Int != nil {
			// big_map given by id
			return val.Int.String(), nil
		}
		if val.Type != micheline.PrimSequence {
			return nil, fmt.Errorf("expected map")
		}
		out := make(map[string]interface{}, len(val.Args))
		for _, elt := range val.Args {
			if !isOpCode(elt, "Elt") || len(elt.Args) != 2 {
				return nil, fmt.Errorf("expected map element")
			}
			k, err := Decode(typ.Args[0], elt.Args[0])
			if err != nil {
				return nil, err
			}
			v, err := Decode(typ.Args[1], elt.Args[1])
			if err != nil {
				return nil, err
			}
			out[keyString(k)] = v
		}
		return out, nil

	case micheline.T_PAIR:
		values, ok := pairValues(typ, val)
		if !ok {
			return nil, fmt.Errorf("expected pair")
		}
		ls := leaves(typ)
		if len(ls) != len(values) {
			return nil, fmt.Errorf("pair arity mismatch")
		}
		out := make(map[string]interface{}, len(ls))
		for i, l := range ls {
			v, err := Decode(l.typ, values[i])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", l.name, err)
			}
			out[l.name] = v
		}
		return out, nil

	case micheline.T_OR:
		if len(val.Args) == 1 {
			if isOpCode(val, "Left") {
				v, err := Decode(typ.Args[0], val.Args[0])
				return map[string]interface{}{branchName(typ.Args[0], "0"): v}, err
			}
			if isOpCode(val, "Right") {
				v, err := Decode(typ.Args[1], val.Args[0])
				return map[string]interface{}{branchName(typ.Args[1], "1"): v}, err
			}
		}
		return nil, fmt.Errorf("expected or")
	}

	return nil, fmt.Errorf("unsupported type %s", typ.OpCode)
}

func branchName(p micheline.Prim, fallback string) string {
	if name := fieldName(p); name != "" {
		return name
	}
	return fallback
}

func keyString(k interface{}) string {
	switch t := k.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", k)
}
