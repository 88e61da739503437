package mangle

import (
	"fmt"
	"strings"

	"github.com/vango-dev/hotshim/internal/errors"
)

// Parts are the three segments of a registry key, as they appear in the key.
type Parts struct {
	Owner  string
	Name   string
	Module string
}

// String recomposes the key.
func (p Parts) String() string {
	return keyPrefix + p.Owner + keyDelimiter + p.Name + keyDelimiter + p.Module
}

// Parse splits a registry key into its segments. The rewrite of separators
// is not reversible, so segments come back in their mangled form.
func Parse(key string) (Parts, error) {
	if !strings.HasPrefix(key, keyPrefix) {
		return Parts{}, invalidKey(key, `missing leading "_"`)
	}
	segs := strings.Split(key[len(keyPrefix):], keyDelimiter)
	if len(segs) != 3 {
		return Parts{}, invalidKey(key, fmt.Sprintf(`want 2 "$" delimiters, found %d`, len(segs)-1))
	}
	for _, s := range segs {
		if s == "" {
			return Parts{}, invalidKey(key, "empty segment")
		}
	}
	return Parts{Owner: segs[0], Name: segs[1], Module: segs[2]}, nil
}

func invalidKey(key, reason string) error {
	return errors.New("H103").
		WithDetail(fmt.Sprintf("%q: %s", key, reason)).
		Wrap(ErrInvalidKey)
}
