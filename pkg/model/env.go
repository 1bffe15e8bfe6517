package model

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Env is a set of NAME=VALUE pairs. Keys are unique; the last write wins.
type Env map[string]string

// ParseEnv parses NAME=VALUE entries. Later entries override earlier ones.
func ParseEnv(pairs []string) (Env, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(Env, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid environment entry %q: want NAME=VALUE", p)
		}
		env[name] = value
	}
	return env, nil
}

// Clone returns a copy, or nil for an empty Env.
func (e Env) Clone() Env {
	if len(e) == 0 {
		return nil
	}
	return maps.Clone(e)
}

// Pairs returns NAME=VALUE strings sorted by name.
func (e Env) Pairs() []string {
	out := make([]string, 0, len(e))
	for _, k := range slices.Sorted(maps.Keys(e)) {
		out = append(out, k+"="+e[k])
	}
	return out
}

// MergeEnviron layers overlays over base (an os.Environ style slice) and
// returns the result with each name appearing once. Later layers win; names
// keep the position of their first appearance.
func MergeEnviron(base []string, overlays ...Env) []string {
	index := make(map[string]int, len(base))
	out := make([]string, 0, len(base))
	set := func(name, kv string) {
		if i, ok := index[name]; ok {
			out[i] = kv
			return
		}
		index[name] = len(out)
		out = append(out, kv)
	}
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		set(name, kv)
	}
	for _, env := range overlays {
		for _, kv := range env.Pairs() {
			name, _, _ := strings.Cut(kv, "=")
			set(name, kv)
		}
	}
	return out
}
