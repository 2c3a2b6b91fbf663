package provider

import (
	"reflect"
	"testing"
)

func TestResolve(t *testing.T) {
	r := NewResolver(map[string][]string{
		"openrouter": {"groq"},
		"groq":       {"openrouter"},
		"anthropic":  {"groq", "openrouter", "groq"},
		"loopy":      {"loopy", "groq"},
	})

	cases := []struct {
		name      string
		preferred string
		want      []string
	}{
		{"simple chain", "openrouter", []string{"openrouter", "groq"}},
		{"reverse chain", "groq", []string{"groq", "openrouter"}},
		{"duplicate fallback collapsed", "anthropic", []string{"anthropic", "groq", "openrouter"}},
		{"self reference collapsed", "loopy", []string{"loopy", "groq"}},
		{"unknown provider stands alone", "ollama", []string{"ollama"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Resolve(tc.preferred); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Resolve(%q) = %v, want %v", tc.preferred, got, tc.want)
			}
		})
	}
}

func TestResolveEmptyPreferred(t *testing.T) {
	r := NewResolver(nil)
	if got := r.Resolve(""); len(got) != 0 {
		t.Fatalf("Resolve(\"\") = %v, want empty", got)
	}
}

func TestNewResolverCopiesChains(t *testing.T) {
	chains := map[string][]string{"a": {"b"}}
	r := NewResolver(chains)
	chains["a"][0] = "mutated"
	if got := r.Resolve("a"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("resolver observed caller mutation: %v", got)
	}
}
