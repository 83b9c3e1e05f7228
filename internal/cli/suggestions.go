package cli

import (
	"fmt"
	"strings"

	"github.com/ucmodeler/modelstore/internal/store"
	"github.com/ucmodeler/modelstore/pkg/color"
)

const maxSuggestions = 3

// suggestModels suggests existing models whose names resemble name.
func suggestModels(s *store.Store, name string) string {
	names, err := s.Names()
	if err != nil || len(names) == 0 {
		return fmt.Sprintf("Run %s to see available models.", color.Code("modelstore list"))
	}

	var matches []string
	for _, n := range closeNames(names, name) {
		matches = append(matches, color.ModelName(n))
		if len(matches) == maxSuggestions {
			break
		}
	}
	if len(matches) == 0 {
		return fmt.Sprintf("Run %s to see available models.", color.Code("modelstore list"))
	}

	hint := "Did you mean"
	if len(matches) > 1 {
		hint += " one of"
	}
	return fmt.Sprintf("%s: %s?", hint, strings.Join(matches, ", "))
}

// closeNames returns candidates equal to query ignoring case, sharing a
// prefix with it, or containing it, in that order.
func closeNames(candidates []string, query string) []string {
	q := strings.ToLower(query)
	if q == "" {
		return nil
	}
	var exact, prefix, contains []string
	for _, c := range candidates {
		lc := strings.ToLower(c)
		switch {
		case lc == q:
			exact = append(exact, c)
		case strings.HasPrefix(lc, q) || strings.HasPrefix(q, lc):
			prefix = append(prefix, c)
		case strings.Contains(lc, q):
			contains = append(contains, c)
		}
	}
	return append(append(exact, prefix...), contains...)
}
