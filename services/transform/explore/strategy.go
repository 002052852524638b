// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package explore implements the exploration engine: candidate plan
// generation, bounded-concurrency evaluation, and ranking.
package explore

import (
	"fmt"

	"github.com/AleutianAI/genreshift/services/transform/config"
)

// Strategy is the closed set of plan-generation strategies. The zero
// value is invalid; construct one through ParseStrategy.
type Strategy int

const (
	// GenrePriority suggests target genres and matching high-level
	// instructions directly.
	GenrePriority Strategy = iota + 1

	// DimensionShift first proposes an explicit transformation of the
	// attribute space, then derives genre and instruction from the
	// shifted attributes.
	DimensionShift
)

// ParseStrategy maps a configured strategy name to its variant.
//
// Outputs:
//   - Strategy: The parsed variant.
//   - error: Non-nil for names outside the closed set.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case config.StrategyGenrePriority:
		return GenrePriority, nil
	case config.StrategyDimensionShift:
		return DimensionShift, nil
	default:
		return 0, fmt.Errorf("unknown exploration strategy %q", name)
	}
}

// String implements fmt.Stringer using the configuration names.
func (s Strategy) String() string {
	switch s {
	case GenrePriority:
		return config.StrategyGenrePriority
	case DimensionShift:
		return config.StrategyDimensionShift
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}
