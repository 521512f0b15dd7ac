package response

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FilterHeader carries the structured filter expression on list requests.
const FilterHeader = "X-Filter"

// Filter is a parsed X-Filter expression. The zero value matches everything
// and preserves order.
type Filter struct {
	expr    map[string]any
	orderBy string
	desc    bool
}

// ParseFilter decodes and validates an X-Filter header value.
func ParseFilter(raw string) (Filter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Filter{}, nil
	}
	var expr map[string]any
	if err := json.Unmarshal([]byte(raw), &expr); err != nil {
		return Filter{}, fmt.Errorf("filter must be a JSON object: %w", err)
	}
	f := Filter{expr: expr}
	if v, ok := expr["+order_by"]; ok {
		s, ok := v.(string)
		if !ok || s == "" {
			return Filter{}, fmt.Errorf("+order_by must be a field name")
		}
		f.orderBy = s
	}
	if v, ok := expr["+order"]; ok {
		switch v {
		case "asc":
		case "desc":
			f.desc = true
		default:
			return Filter{}, fmt.Errorf("+order must be asc or desc")
		}
	}
	if err := validateObject(expr); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// IsZero reports whether the filter neither restricts nor orders.
func (f Filter) IsZero() bool { return len(f.expr) == 0 }

var fieldOperators = map[string]bool{
	"+contains": true, "+neq": true, "+gt": true, "+gte": true, "+lt": true, "+lte": true,
	"+and": true, "+or": true,
}

func validateObject(expr map[string]any) error {
	for k, v := range expr {
		switch k {
		case "+order_by", "+order":
			continue
		case "+and", "+or":
			list, ok := v.([]any)
			if !ok {
				return fmt.Errorf("%s must be a list", k)
			}
			for _, item := range list {
				obj, ok := item.(map[string]any)
				if !ok {
					return fmt.Errorf("%s entries must be objects", k)
				}
				if err := validateObject(obj); err != nil {
					return err
				}
			}
		default:
			if strings.HasPrefix(k, "+") {
				return fmt.Errorf("unknown filter operator %s", k)
			}
			if err := validateCondition(v); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
	}
	return nil
}

func validateCondition(cond any) error {
	obj, ok := cond.(map[string]any)
	if !ok {
		return nil
	}
	if !hasOperator(obj) {
		return validateObject(obj)
	}
	for op, arg := range obj {
		if !fieldOperators[op] {
			return fmt.Errorf("unknown filter operator %s", op)
		}
		switch op {
		case "+and", "+or":
			list, ok := arg.([]any)
			if !ok {
				return fmt.Errorf("%s must be a list", op)
			}
			for _, item := range list {
				if err := validateCondition(item); err != nil {
					return err
				}
			}
		case "+neq":
			if err := validateCondition(arg); err != nil {
				return fmt.Errorf("+neq: %w", err)
			}
		}
	}
	return nil
}

func hasOperator(obj map[string]any) bool {
	for k := range obj {
		if strings.HasPrefix(k, "+") {
			return true
		}
	}
	return false
}

// Match reports whether item (a decoded JSON object) satisfies the filter.
func (f Filter) Match(item map[string]any) bool {
	return matchObject(f.expr, item)
}

func matchObject(expr map[string]any, item map[string]any) bool {
	for k, v := range expr {
		switch k {
		case "+order_by", "+order":
			continue
		case "+and":
			for _, sub := range v.([]any) {
				if !matchObject(sub.(map[string]any), item) {
					return false
				}
			}
		case "+or":
			matched := false
			for _, sub := range v.([]any) {
				if matchObject(sub.(map[string]any), item) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		default:
			if !matchValue(lookup(item, k), v) {
				return false
			}
		}
	}
	return true
}

func matchValue(field any, cond any) bool {
	obj, isObj := cond.(map[string]any)
	if isObj && !hasOperator(obj) {
		nested, ok := field.(map[string]any)
		return ok && matchObject(obj, nested)
	}
	if !isObj {
		if list, ok := field.([]any); ok {
			for _, el := range list {
				if compareValues(el, cond) == 0 {
					return true
				}
			}
			return false
		}
		return field != nil && compareValues(field, cond) == 0
	}
	for op, arg := range obj {
		if !matchOperator(field, op, arg) {
			return false
		}
	}
	return true
}

func matchOperator(field any, op string, arg any) bool {
	switch op {
	case "+contains":
		needle := strings.ToLower(fmt.Sprint(arg))
		if list, ok := field.([]any); ok {
			for _, el := range list {
				if strings.Contains(strings.ToLower(fmt.Sprint(el)), needle) {
					return true
				}
			}
			return false
		}
		return field != nil && strings.Contains(strings.ToLower(fmt.Sprint(field)), needle)
	case "+neq":
		return !matchValue(field, arg)
	case "+gt":
		return field != nil && compareValues(field, arg) > 0
	case "+gte":
		return field != nil && compareValues(field, arg) >= 0
	case "+lt":
		return field != nil && compareValues(field, arg) < 0
	case "+lte":
		return field != nil && compareValues(field, arg) <= 0
	case "+and":
		for _, c := range arg.([]any) {
			if !matchValue(field, c) {
				return false
			}
		}
		return true
	case "+or":
		for _, c := range arg.([]any) {
			if matchValue(field, c) {
				return true
			}
		}
		return false
	}
	return false
}

// lookup resolves a dotted path against a decoded JSON object.
func lookup(item map[string]any, path string) any {
	if v, ok := item[path]; ok {
		return v
	}
	var cur any = item
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[part]
	}
	return cur
}

// compareValues orders nil first, then numbers numerically, then booleans,
// and everything else by string form.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	ab, aBool := a.(bool)
	bb, bBool := b.(bool)
	if aBool && bBool {
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		}
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Apply filters then stably sorts items. Items are compared through their
// JSON encoding so any entity type works.
func Apply[T any](items []T, f Filter) ([]T, error) {
	if f.IsZero() {
		return items, nil
	}
	type candidate struct {
		item T
		obj  map[string]any
	}
	kept := make([]candidate, 0, len(items))
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encode candidate: %w", err)
		}
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("decode candidate: %w", err)
		}
		if f.Match(obj) {
			kept = append(kept, candidate{item: item, obj: obj})
		}
	}
	if f.orderBy != "" {
		sort.SliceStable(kept, func(i, j int) bool {
			c := compareValues(lookup(kept[i].obj, f.orderBy), lookup(kept[j].obj, f.orderBy))
			if f.desc {
				return c > 0
			}
			return c < 0
		})
	}
	out := make([]T, 0, len(kept))
	for _, c := range kept {
		out = append(out, c.item)
	}
	return out, nil
}
