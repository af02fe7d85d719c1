package tez

import (
	"strings"

	"blockwatch.cc/tzgo/tezos"
)

// IsContract reports whether s is a valid originated (KT1) address.
func IsContract(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "KT1") {
		return false
	}
	a, err := tezos.ParseAddress(s)
	return err == nil && a.IsValid()
}

// IsAccount reports whether s is a valid implicit (tz1..tz4) address.
func IsAccount(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "tz") {
		return false
	}
	a, err := tezos.ParseAddress(s)
	return err == nil && a.IsValid()
}

func IsAddress(s string) bool {
	return IsContract(s) || IsAccount(s)
}
