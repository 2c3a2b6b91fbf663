// Package provider selects which backends a step should try, and in what
// order. The resolver is a pure lookup over a static fallback
// configuration; actual provider clients live outside the engine.
package provider

// Resolver maps a preferred provider name to the ordered list of
// providers to attempt: preferred first, then its configured fallbacks,
// deduplicated by first-seen order.
type Resolver struct {
	chains map[string][]string
}

// NewResolver builds a resolver from a static fallback configuration.
// The map is copied; later mutation of the argument has no effect.
func NewResolver(chains map[string][]string) *Resolver {
	copied := make(map[string][]string, len(chains))
	for name, fallbacks := range chains {
		copied[name] = append([]string(nil), fallbacks...)
	}
	return &Resolver{chains: copied}
}

// Resolve returns the providers to try for the given preference. The
// preferred name is always first, even when it has no configured chain.
func (r *Resolver) Resolve(preferred string) []string {
	out := make([]string, 0, 1+len(r.chains[preferred]))
	seen := map[string]bool{}

	appendUnique := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	appendUnique(preferred)
	for _, fallback := range r.chains[preferred] {
		appendUnique(fallback)
	}
	return out
}
