// Package orderkey generates fractional sibling-ordering keys.
//
// A key is a base-62 string made of an integer part, whose first character
// encodes its length ('a'..'z' for non-negative, 'A'..'Z' for negative
// integers), followed by an optional fractional part that never ends in '0'.
// Keys compare with plain string comparison, so a new key can always be
// generated strictly between any two existing ones without touching them.
package orderkey

import (
	"errors"
	"fmt"
	"strings"
)

const digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// ErrInvalidKey is returned for keys that were not produced by this package.
var ErrInvalidKey = errors.New("invalid order key")

// Initial is the key generated when there are no neighbours.
const Initial = "a0"

// smallestInteger is the lowest integer part; nothing can be placed before it
// without a fractional part.
var smallestInteger = "A" + strings.Repeat("0", 26)

// Between returns a key that sorts strictly between a and b.
// An empty a means "before b", an empty b means "after a".
func Between(a, b string) (string, error) {
	if a != "" {
		if err := Validate(a); err != nil {
			return "", err
		}
	}
	if b != "" {
		if err := Validate(b); err != nil {
			return "", err
		}
	}
	if a != "" && b != "" && a >= b {
		return "", fmt.Errorf("%w: %q is not before %q", ErrInvalidKey, a, b)
	}

	if a == "" {
		if b == "" {
			return Initial, nil
		}
		ib, _ := integerPart(b)
		fb := b[len(ib):]
		if ib == smallestInteger {
			return ib + midpoint("", fb, true), nil
		}
		if ib < b {
			return ib, nil
		}
		res, ok := decrementInteger(ib)
		if !ok {
			return "", fmt.Errorf("%w: cannot generate a key before %q", ErrInvalidKey, b)
		}
		return res, nil
	}

	ia, _ := integerPart(a)
	fa := a[len(ia):]
	if b == "" {
		i, ok := incrementInteger(ia)
		if !ok {
			return ia + midpoint(fa, "", false), nil
		}
		return i, nil
	}

	ib, _ := integerPart(b)
	fb := b[len(ib):]
	if ia == ib {
		return ia + midpoint(fa, fb, true), nil
	}
	i, ok := incrementInteger(ia)
	if !ok {
		return "", fmt.Errorf("%w: cannot generate a key after %q", ErrInvalidKey, a)
	}
	if i < b {
		return i, nil
	}
	return ia + midpoint(fa, "", false), nil
}

// NBetween returns n keys in ascending order, all strictly between a and b.
// Keys are spread so that the middle ones stay short.
func NBetween(a, b string, n int) ([]string, error) {
	switch {
	case n <= 0:
		return nil, nil
	case n == 1:
		k, err := Between(a, b)
		if err != nil {
			return nil, err
		}
		return []string{k}, nil
	}

	if b == "" {
		out := make([]string, 0, n)
		c := a
		for i := 0; i < n; i++ {
			k, err := Between(c, "")
			if err != nil {
				return nil, err
			}
			out = append(out, k)
			c = k
		}
		return out, nil
	}

	if a == "" {
		out := make([]string, n)
		c := b
		for i := n - 1; i >= 0; i-- {
			k, err := Between("", c)
			if err != nil {
				return nil, err
			}
			out[i] = k
			c = k
		}
		return out, nil
	}

	mid := n / 2
	c, err := Between(a, b)
	if err != nil {
		return nil, err
	}
	left, err := NBetween(a, c, mid)
	if err != nil {
		return nil, err
	}
	right, err := NBetween(c, b, n-mid-1)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	out = append(out, left...)
	out = append(out, c)
	return append(out, right...), nil
}

// N returns count ascending keys for a freshly materialized sibling list.
func N(count int) ([]string, error) {
	return NBetween("", "", count)
}

// Validate reports whether key is well formed.
func Validate(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if key == smallestInteger {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	i, err := integerPart(key)
	if err != nil {
		return err
	}
	for j := 1; j < len(key); j++ {
		if strings.IndexByte(digits, key[j]) < 0 {
			return fmt.Errorf("%w: %q has non base-62 digit %q", ErrInvalidKey, key, key[j])
		}
	}
	if f := key[len(i):]; f != "" && f[len(f)-1] == digits[0] {
		return fmt.Errorf("%w: %q has a trailing zero", ErrInvalidKey, key)
	}
	return nil
}

// Compare orders two keys. Invalid keys sort after every valid key, and
// among themselves by string value, so malformed input fails closed.
func Compare(a, b string) int {
	va, vb := Validate(a) == nil, Validate(b) == nil
	switch {
	case va && !vb:
		return -1
	case !va && vb:
		return 1
	}
	return strings.Compare(a, b)
}

// Less is Compare(a, b) < 0.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// Assign maps ids onto ascending keys. Ids listed in explicit come first, in
// that order; remaining ids keep their relative order and follow.
func Assign(ids []string, explicit []string) (map[string]string, error) {
	present := make(map[string]bool, len(ids))
	for _, id := range ids {
		present[id] = true
	}

	ordered := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range explicit {
		if present[id] && !seen[id] {
			ordered = append(ordered, id)
			seen[id] = true
		}
	}
	for _, id := range ids {
		if !seen[id] {
			ordered = append(ordered, id)
			seen[id] = true
		}
	}

	keys, err := N(len(ordered))
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(ordered))
	for i, id := range ordered {
		out[id] = keys[i]
	}
	return out, nil
}

func integerLength(head byte) (int, error) {
	switch {
	case head >= 'a' && head <= 'z':
		return int(head-'a') + 2, nil
	case head >= 'A' && head <= 'Z':
		return int('Z'-head) + 2, nil
	}
	return 0, fmt.Errorf("%w: invalid head %q", ErrInvalidKey, head)
}

func integerPart(key string) (string, error) {
	n, err := integerLength(key[0])
	if err != nil {
		return "", err
	}
	if n > len(key) {
		return "", fmt.Errorf("%w: %q is shorter than its integer part", ErrInvalidKey, key)
	}
	return key[:n], nil
}

func incrementInteger(x string) (string, bool) {
	head, digs := x[0], []byte(x[1:])
	carry := true
	for i := len(digs) - 1; carry && i >= 0; i-- {
		d := strings.IndexByte(digits, digs[i]) + 1
		if d == len(digits) {
			digs[i] = digits[0]
		} else {
			digs[i] = digits[d]
			carry = false
		}
	}
	if !carry {
		return string(head) + string(digs), true
	}
	switch head {
	case 'Z':
		return "a" + string(digits[0]), true
	case 'z':
		return "", false
	}
	h := head + 1
	if h > 'a' {
		digs = append(digs, digits[0])
	} else {
		digs = digs[:len(digs)-1]
	}
	return string(h) + string(digs), true
}

func decrementInteger(x string) (string, bool) {
	head, digs := x[0], []byte(x[1:])
	borrow := true
	for i := len(digs) - 1; borrow && i >= 0; i-- {
		d := strings.IndexByte(digits, digs[i]) - 1
		if d == -1 {
			digs[i] = digits[len(digits)-1]
		} else {
			digs[i] = digits[d]
			borrow = false
		}
	}
	if !borrow {
		return string(head) + string(digs), true
	}
	switch head {
	case 'a':
		return "Z" + string(digits[len(digits)-1]), true
	case 'A':
		return "", false
	}
	h := head - 1
	if h < 'Z' {
		digs = append(digs, digits[len(digits)-1])
	} else {
		digs = digs[:len(digs)-1]
	}
	return string(h) + string(digs), true
}

// midpoint returns a fractional part strictly between a and b. An empty b
// with hasB false means "no upper bound".
func midpoint(a, b string, hasB bool) string {
	if hasB && b != "" {
		n := 0
		for {
			ca := byte(digits[0])
			if n < len(a) {
				ca = a[n]
			}
			if n >= len(b) || ca != b[n] {
				break
			}
			n++
		}
		if n > 0 {
			rest := ""
			if n < len(a) {
				rest = a[n:]
			}
			return b[:n] + midpoint(rest, b[n:], true)
		}
	}

	digitA := 0
	if a != "" {
		digitA = strings.IndexByte(digits, a[0])
	}
	digitB := len(digits)
	if hasB && b != "" {
		digitB = strings.IndexByte(digits, b[0])
	}
	if digitB-digitA > 1 {
		mid := (digitA + digitB + 1) / 2
		return string(digits[mid])
	}
	if hasB && len(b) > 1 {
		return b[:1]
	}
	rest := ""
	if a != "" {
		rest = a[1:]
	}
	return string(digits[digitA]) + midpoint(rest, "", false)
}
