//go:build property
// +build property

package canonicalize_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/vcp-chain/auditlog/pkg/canonicalize"
)

// TestCanonicalDeterminism covers spec §8's "Canonical determinism"
// property: JCS(E) == JCS(E') for E' built by inserting the same keys
// (including nested payload maps) in any order.
func TestCanonicalDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("key order never affects canonical output", prop.ForAll(
		func(keys []string, values []string) bool {
			a := make(map[string]interface{}, len(keys))
			b := make(map[string]interface{}, len(keys))
			for i := 0; i < len(keys) && i < len(values); i++ {
				if keys[i] == "" {
					continue
				}
				a[keys[i]] = map[string]interface{}{"v": values[i], "nested": map[string]interface{}{"x": i}}
			}
			// Rebuild b by iterating keys in reverse, forcing a different
			// insertion order into the Go map (map order is random anyway,
			// but this keeps the property honest about semantics, not
			// implementation accident).
			ks := make([]string, 0, len(a))
			for k := range a {
				ks = append(ks, k)
			}
			for i := len(ks) - 1; i >= 0; i-- {
				b[ks[i]] = a[ks[i]]
			}

			ga, err1 := canonicalize.JCSString(a)
			gb, err2 := canonicalize.JCSString(b)
			if err1 != nil || err2 != nil {
				return err1 == err2
			}
			return ga == gb
		},
		gen.SliceOfN(10, gen.AlphaString()),
		gen.SliceOfN(10, gen.AlphaString()),
	))

	properties.Property("non-ASCII runes always escape to pure-ASCII output", prop.ForAll(
		func(s string) bool {
			got, err := canonicalize.JCSString(map[string]interface{}{"s": s})
			if err != nil {
				return false
			}
			for _, r := range got {
				if r > 0x7F {
					return false
				}
			}
			return true
		},
		gen.UnicodeString(),
	))

	properties.TestingRun(t)
}
