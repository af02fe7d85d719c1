package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"github.com/ZilDuck/zerosum-market-resolver/pkg/tez"
)

var (
	ErrFieldMissing = errors.New("field missing")
	ErrFieldInvalid = errors.New("field invalid")
)

const maxWalkDepth = 6

// walkContext is what the keys above a record tell us about it.
type walkContext struct {
	contract string
	tokenId  *uint64
	nonce    *uint64
	account  string
	// index is the first bare numeric key. It is the nonce when the record
	// names its own token id.
	index *uint64
}

// enter derives the context for a child stored under key. A numeric key is the
// token id until one is known, then the nonce. KT1 keys name the collection and
// tz keys an account (seller or offeror).
func (c walkContext) enter(key string) walkContext {
	key = strings.TrimSpace(key)
	switch {
	case tez.IsContract(key):
		c.contract = key
	case tez.IsAccount(key):
		c.account = key
	default:
		n, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return c
		}
		if c.tokenId == nil {
			c.tokenId = &n
			c.index = &n
		} else {
			c.nonce = &n
		}
	}
	return c
}

// enterKey folds a big-map key of any shape into the context. Object keys are
// read by field name first.
func (c walkContext) enterKey(key interface{}) walkContext {
	index := c.index
	switch k := key.(type) {
	case string:
		return c.enter(k)
	case json.Number:
		return c.enter(k.String())
	case map[string]interface{}:
		if s := str(first(k, "nft_contract", "contract", "collection", "address")); tez.IsContract(s) {
			c.contract = s
		}
		if n, err := toUint(first(k, "token_id", "tokenId")); err == nil {
			c.tokenId = &n
		}
		if n, err := toUint(first(k, "listing_nonce", "nonce")); err == nil {
			c.nonce = &n
		}
		if s := str(first(k, "offeror", "seller", "buyer", "owner")); tez.IsAccount(s) {
			c.account = s
		}
		for _, name := range sortedKeys(k) {
			switch name {
			case "nft_contract", "contract", "collection", "address", "token_id", "tokenId",
				"listing_nonce", "nonce", "offeror", "seller", "buyer", "owner":
				continue
			}
			c = c.enterKey(k[name])
		}
	case []interface{}:
		for _, item := range k {
			c = c.enterKey(item)
		}
	}
	// numbers inside composite keys are token ids, never an index
	c.index = index
	return c
}

// walk visits every record below v that match accepts, handing over the context
// collected from the keys leading to it.
func walk(v interface{}, ctx walkContext, depth int, match func(map[string]interface{}) bool, visit func(map[string]interface{}, walkContext)) {
	if v == nil || depth > maxWalkDepth {
		return
	}

	switch t := v.(type) {
	case map[string]interface{}:
		if match(t) {
			visit(t, ctx)
			return
		}
		for _, k := range sortedKeys(t) {
			walk(t[k], ctx.enter(k), depth+1, match, visit)
		}
	case []interface{}:
		for _, item := range t {
			walk(item, ctx, depth+1, match, visit)
		}
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// first returns the first present, non nil field among names. Dotted names reach
// into nested objects.
func first(m map[string]interface{}, names ...string) interface{} {
	for _, name := range names {
		if v := lookup(m, name); v != nil {
			return v
		}
	}
	return nil
}

func lookup(m map[string]interface{}, path string) interface{} {
	parts := strings.Split(path, ".")
	var cur interface{} = m
	for _, p := range parts {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur, ok = obj[p]
		if !ok {
			return nil
		}
	}
	return cur
}

func has(m map[string]interface{}, names ...string) bool {
	return first(m, names...) != nil
}

func toUint(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case nil:
		return 0, ErrFieldMissing
	case uint64:
		return n, nil
	case int:
		if n < 0 {
			return 0, ErrFieldInvalid
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, ErrFieldInvalid
		}
		return uint64(n), nil
	case float64:
		if n < 0 || n != math.Trunc(n) || n >= math.MaxUint64 {
			return 0, ErrFieldInvalid
		}
		return uint64(n), nil
	case json.Number:
		return parseUint(n.String())
	case string:
		return parseUint(n)
	}
	return 0, fmt.Errorf("%T: %w", v, ErrFieldInvalid)
}

func parseUint(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrFieldMissing
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f >= math.MaxUint64 {
		return 0, fmt.Errorf("%q: %w", s, ErrFieldInvalid)
	}
	return uint64(f), nil
}

func toBool(v interface{}, def bool) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	return def
}

// str reads an address-like value, either a plain string or an object carrying one.
func str(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case map[string]interface{}:
		return str(first(s, "address", "owner", "string"))
	}
	return ""
}

func toTime(v interface{}) *time.Time {
	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return &parsed
		}
		if secs, err := strconv.ParseInt(t, 10, 64); err == nil {
			parsed := time.Unix(secs, 0).UTC()
			return &parsed
		}
	case json.Number:
		if secs, err := t.Int64(); err == nil {
			parsed := time.Unix(secs, 0).UTC()
			return &parsed
		}
	case float64:
		if math.IsNaN(t) || t < math.MinInt64 || t >= math.MaxInt64 {
			return nil
		}
		parsed := time.Unix(int64(t), 0).UTC()
		return &parsed
	}
	return nil
}

func toSplits(v interface{}) []entity.Split {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}

	splits := make([]entity.Split, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		percent, err := toUint(first(m, "percent", "bps", "share"))
		if err != nil {
			continue
		}
		address := str(first(m, "address", "recipient"))
		if address == "" {
			continue
		}
		splits = append(splits, entity.Split{Address: address, PercentBasisPoints: percent})
	}
	return splits
}

// entries flattens the container shapes views answer with: a list, an object with
// a result or values list, or an object keyed by id.
func entries(raw interface{}) interface{} {
	if m, ok := raw.(map[string]interface{}); ok {
		for _, key := range []string{"result", "values"} {
			if list, ok := m[key].([]interface{}); ok {
				return list
			}
		}
	}
	return raw
}
