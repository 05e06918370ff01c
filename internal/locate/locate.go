// internal/locate/locate.go
//
// Package locate models DOM lookup targets as ordered lists of
// independently fallible strategies. The portal's markup is unstable and
// undocumented, so no interactive element is ever bound to a single
// selector; a target is resolved by walking its strategy list
// left-to-right and taking the first visible match. The strategy lists
// themselves are configuration data, not code.
package locate

import "fmt"

// By identifies a lookup technique.
type By string

const (
	ByCSS   By = "css"
	ByXPath By = "xpath"
)

// Strategy is a single (technique, query) pair for finding an element.
type Strategy struct {
	By    By     `mapstructure:"by" yaml:"by"`
	Query string `mapstructure:"query" yaml:"query"`
}

// CSS builds a CSS selector strategy.
func CSS(query string) Strategy { return Strategy{By: ByCSS, Query: query} }

// XPath builds an XPath strategy.
func XPath(query string) Strategy { return Strategy{By: ByXPath, Query: query} }

// Target is a named, ordered cascade of strategies for one logical UI
// element. A failure of one strategy never aborts the cascade.
type Target struct {
	Name       string
	Strategies []Strategy
}

// NewTarget assembles a target from its strategies in priority order.
func NewTarget(name string, strategies ...Strategy) Target {
	return Target{Name: name, Strategies: strategies}
}

// FromStrategies wraps an already-built strategy slice (typically sourced
// from configuration) into a named target.
func FromStrategies(name string, strategies []Strategy) Target {
	return Target{Name: name, Strategies: strategies}
}

// Hit is a resolved locator: the exact strategy that matched a visible
// element. It is what the driver layer uses for subsequent interaction,
// so the interaction hits the same element the cascade found.
type Hit struct {
	By    By
	Query string
}

// Hit converts a strategy into its resolved form.
func (s Strategy) Hit() Hit { return Hit{By: s.By, Query: s.Query} }

// KeywordXPath expands a list of button keywords into XPath strategies
// matching either button text or input values, mirroring how the portal
// labels its submit controls inconsistently across pages.
func KeywordXPath(keywords []string) []Strategy {
	out := make([]Strategy, 0, len(keywords))
	for _, kw := range keywords {
		q := fmt.Sprintf("//button[contains(text(), '%s')] | //input[contains(@value, '%s')]", kw, kw)
		out = append(out, XPath(q))
	}
	return out
}
