package contract

import "github.com/ZilDuck/zerosum-market-resolver/internal/entity"

// Args is one candidate argument set for a view: either named fields or a
// positional tuple.
type Args struct {
	named      entity.Params
	positional []interface{}
}

func Named(params entity.Params) Args {
	return Args{named: params}
}

func Positional(values ...interface{}) Args {
	return Args{positional: values}
}

func (a Args) IsNamed() bool {
	return a.named != nil
}

func (a Args) Named() entity.Params {
	return a.named
}

func (a Args) Positional() []interface{} {
	return a.positional
}

func (a Args) Empty() bool {
	return len(a.named) == 0 && len(a.positional) == 0
}
