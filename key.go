package taskcoord

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Key is a set-semantic identity value. Two Keys are equal iff their atom
// sets are equal, independent of the order in which the atoms were
// combined. The zero Key is valid and denotes the empty atom set; combining
// it with anything yields the other operand's atoms.
type Key struct {
	sig string
}

const keyTokenSep = "\x1f"

// atomToken renders an atom as a type-disambiguated, order-stable token.
// The %T prefix keeps int(5), int64(5) and "5" from colliding.
func atomToken(atom any) string {
	switch v := atom.(type) {
	case reflect.Type:
		return "type:" + v.PkgPath() + "." + v.Name()
	case string:
		return "string:" + v
	case bool:
		return fmt.Sprintf("bool:%t", v)
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%T:%d", v, v)
	default:
		return fmt.Sprintf("%T:%#v", v, v)
	}
}

func tokensOf(sig string) []string {
	if sig == "" {
		return nil
	}
	return strings.Split(sig, keyTokenSep)
}

func canonicalize(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	uniq := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := uniq[t]; ok {
			continue
		}
		uniq[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return strings.Join(out, keyTokenSep)
}

// NewKey builds a Key from the given atoms. Atoms may be any of a signed
// integer, a 64-bit integer, a bool, a string, a reflect.Type (type
// identity), or any other comparable value (best-effort via %#v).
func NewKey(atoms ...any) Key {
	tokens := make([]string, 0, len(atoms))
	for _, a := range atoms {
		tokens = append(tokens, atomToken(a))
	}
	return Key{sig: canonicalize(tokens)}
}

// Combine returns a Key whose atoms are the union of a's and b's. Combine is
// commutative and idempotent: Combine(a, b) == Combine(b, a), and
// Combine(a, a) == a.
func Combine(a, b Key) Key {
	tokens := append(append([]string{}, tokensOf(a.sig)...), tokensOf(b.sig)...)
	return Key{sig: canonicalize(tokens)}
}

// Fresh returns a Key whose atom set is a singleton containing a globally
// unique identifier.
func Fresh() Key {
	return Key{sig: "uuid:" + uuid.NewString()}
}

// SourceLocation returns a Key derived from a file, line and column.
func SourceLocation(file string, line, column int) Key {
	return Key{sig: fmt.Sprintf("loc:%s:%d:%d", file, line, column)}
}

// IsZero reports whether the key carries the empty atom set.
func (k Key) IsZero() bool {
	return k.sig == ""
}

// String returns a debug representation; it is not part of the equality
// contract (two equal Keys always render identically, but the format is
// otherwise unspecified).
func (k Key) String() string {
	if k.sig == "" {
		return "Key{}"
	}
	return "Key{" + strings.ReplaceAll(k.sig, keyTokenSep, ",") + "}"
}
