package tezos

import (
	"strconv"
	"strings"

	"blockwatch.cc/tzgo/micheline"
)

// leaf is one argument slot of a flattened pair type.
type leaf struct {
	name string
	typ  micheline.Prim
}

func newPrim(op micheline.OpCode, args ...micheline.Prim) micheline.Prim {
	typ := micheline.PrimNullary
	switch len(args) {
	case 0:
	case 1:
		typ = micheline.PrimUnary
	case 2:
		typ = micheline.PrimBinary
	default:
		typ = micheline.PrimVariadicAnno
	}
	return micheline.Prim{Type: typ, OpCode: op, Args: args}
}

func newSeq(items ...micheline.Prim) micheline.Prim {
	if items == nil {
		items = []micheline.Prim{}
	}
	return micheline.Prim{Type: micheline.PrimSequence, Args: items}
}

// fieldName returns the %field annotation of a type without its prefix.
func fieldName(p micheline.Prim) string {
	for _, a := range p.Anno {
		if strings.HasPrefix(a, "%") && len(a) > 1 {
			return a[1:]
		}
	}
	return ""
}

func isPairType(p micheline.Prim) bool {
	return p.OpCode == micheline.T_PAIR && len(p.Args) >= 2
}

// combArgs turns a right comb (pair a b c) into its binary form's two halves.
func combArgs(p micheline.Prim) (micheline.Prim, micheline.Prim) {
	if len(p.Args) == 2 {
		return p.Args[0], p.Args[1]
	}
	rest := newPrim(p.OpCode, p.Args[1:]...)
	return p.Args[0], rest
}

// leaves flattens nested unannotated pairs the way wallet libraries present
// entrypoint arguments. Annotated leaves are keyed by their field name, the others
// by their position.
func leaves(typ micheline.Prim) []leaf {
	var out []leaf
	var walk func(p micheline.Prim, root bool)
	walk = func(p micheline.Prim, root bool) {
		if isPairType(p) && (root || fieldName(p) == "") {
			l, r := combArgs(p)
			walk(l, false)
			walk(r, false)
			return
		}
		out = append(out, leaf{name: fieldName(p), typ: p})
	}
	walk(typ, true)

	for i := range out {
		if out[i].name == "" {
			out[i].name = strconv.Itoa(i)
		}
	}
	return out
}

// pairValues splits a pair value the same way leaves splits its type. Values
// arrive as binary pairs, flat combs, or sequences.
func pairValues(typ, val micheline.Prim) ([]micheline.Prim, bool) {
	var out []micheline.Prim
	ok := true
	var walk func(t, v micheline.Prim, root bool)
	walk = func(t, v micheline.Prim, root bool) {
		if !ok {
			return
		}
		if isPairType(t) && (root || fieldName(t) == "") {
			args, isPair := pairValueArgs(v)
			if !isPair {
				ok = false
				return
			}
			tl, tr := combArgs(t)
			var vr micheline.Prim
			if len(args) == 2 {
				vr = args[1]
			} else {
				vr = newPrim(micheline.D_PAIR, args[1:]...)
			}
			walk(tl, args[0], false)
			walk(tr, vr, false)
			return
		}
		out = append(out, v)
	}
	walk(typ, val, true)
	return out, ok
}

func pairValueArgs(v micheline.Prim) ([]micheline.Prim, bool) {
	if v.OpCode == micheline.D_PAIR && len(v.Args) >= 2 && v.Type != micheline.PrimSequence {
		return v.Args, true
	}
	if v.Type == micheline.PrimSequence && len(v.Args) >= 2 {
		return v.Args, true
	}
	return nil, false
}

// rebuildPair nests encoded leaves back into the shape of typ.
func rebuildPair(typ micheline.Prim, values []micheline.Prim) micheline.Prim {
	idx := 0
	var build func(p micheline.Prim, root bool) micheline.Prim
	build = func(p micheline.Prim, root bool) micheline.Prim {
		if isPairType(p) && (root || fieldName(p) == "") {
			l, r := combArgs(p)
			left := build(l, false)
			right := build(r, false)
			return newPrim(micheline.D_PAIR, left, right)
		}
		v := values[idx]
		idx++
		return v
	}
	return build(typ, true)
}

func isOpCode(p micheline.Prim, name string) bool {
	return p.Type != micheline.PrimSequence && p.Type != micheline.PrimInt &&
		p.Type != micheline.PrimString && p.Type != micheline.PrimBytes &&
		p.OpCode.String() == name
}
