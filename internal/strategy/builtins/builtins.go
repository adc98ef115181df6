// Package builtins provides the entry-signal strategies that ship with
// triplebarrier.
package builtins

import "triplebarrier/internal/strategy"

// Register adds the indicator strategies with their default parameters.
func Register(r *strategy.Registry) {
	r.Register(func() strategy.Strategy { return NewEMACross(12, 26) })
	r.Register(func() strategy.Strategy { return NewRSIOversold(14, 30) })
}
