// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package centrality

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/grailbio/base/errors"
)

// Quantity is a condition-wise statistic of a region.
type Quantity int

const (
	// Prob is the restriction probability reads/(libsize*sites).
	Prob Quantity = iota
	// CumProb is the running sum of Prob over conditions 0..i.
	CumProb
	// ProbCum is the restriction probability of the pooled conditions 0..i.
	ProbCum
	// Var is the per-site read count variance.
	Var
	// Fano is the per-site Fano factor, variance/mean.
	Fano
	// CV is the per-site coefficient of variation, std/mean.
	CV
)

// Mode says how condition-wise quantities are combined into one score.
type Mode int

const (
	// TwoPoint combines only the first and last condition.
	TwoPoint Mode = iota
	// Fixed combines every later condition with the first one.
	Fixed
	// Global combines every condition with the one before it.
	Global
)

// Variant is one of the supported centrality metrics.  The set is closed;
// new metrics are added by extending variantTable.
type Variant int

const (
	ProbTwoPoint Variant = iota
	ProbFixed
	ProbGlobal
	CumProbTwoPoint
	CumProbFixed
	CumProbGlobal
	ProbCumTwoPoint
	ProbCumFixed
	ProbCumGlobal
	VarTwoPoint
	VarFixed
	FanoTwoPoint
	FanoFixed
	CVTwoPoint
	CVFixed

	nVariant
)

type variantInfo struct {
	name     string
	quantity Quantity
	mode     Mode
}

var variantTable = [nVariant]variantInfo{
	ProbTwoPoint:    {"prob_2p", Prob, TwoPoint},
	ProbFixed:       {"prob_f", Prob, Fixed},
	ProbGlobal:      {"prob_g", Prob, Global},
	CumProbTwoPoint: {"cor_2p", CumProb, TwoPoint},
	CumProbFixed:    {"cor_f", CumProb, Fixed},
	CumProbGlobal:   {"cor_g", CumProb, Global},
	ProbCumTwoPoint: {"roc_2p", ProbCum, TwoPoint},
	ProbCumFixed:    {"roc_f", ProbCum, Fixed},
	ProbCumGlobal:   {"roc_g", ProbCum, Global},
	VarTwoPoint:     {"var_2p", Var, TwoPoint},
	VarFixed:        {"var_f", Var, Fixed},
	FanoTwoPoint:    {"ff_2p", Fano, TwoPoint},
	FanoFixed:       {"ff_f", Fano, Fixed},
	CVTwoPoint:      {"cv_2p", CV, TwoPoint},
	CVFixed:         {"cv_f", CV, Fixed},
}

// AllVariants lists every variant in canonical order.
func AllVariants() []Variant {
	vs := make([]Variant, nVariant)
	for i := range vs {
		vs[i] = Variant(i)
	}
	return vs
}

func (v Variant) valid() bool { return v >= 0 && v < nVariant }

// String returns the canonical name, e.g. "prob_2p".
func (v Variant) String() string {
	if !v.valid() {
		return fmt.Sprintf("Variant(%d)", int(v))
	}
	return variantTable[v].name
}

// Quantity returns the condition-wise statistic the variant is built on.
func (v Variant) Quantity() Quantity { return variantTable[v].quantity }

// Mode returns how the variant combines conditions.
func (v Variant) Mode() Mode { return variantTable[v].mode }

// NeedsStd reports whether the variant requires per-site standard
// deviations.
func (v Variant) NeedsStd() bool {
	switch v.Quantity() {
	case Var, Fano, CV:
		return true
	}
	return false
}

// HigherIsCentral reports the direction of the variant: whether a higher
// score means the region sits closer to the nuclear center.  Every variant is
// oriented this way.  Probability-based variants grow when late (deep)
// digestion conditions gain signal relative to early ones; Var grows as the
// late conditions become more heterogeneous; Fano and CV are combined as
// early minus late, so they grow as heterogeneity drops.
func (v Variant) HigherIsCentral() bool { return true }

// ParseVariant maps a canonical name to its Variant.  The error for an
// unknown name suggests the closest canonical name, if any is within two
// edits.
func ParseVariant(name string) (Variant, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, info := range variantTable {
		if info.name == name {
			return Variant(i), nil
		}
	}
	msg := fmt.Sprintf("centrality: unknown metric variant %q", name)
	if s, ok := suggest(name); ok {
		msg += fmt.Sprintf(", did you mean %q?", s)
	}
	return 0, errors.E(errors.Invalid, msg)
}

func suggest(name string) (string, bool) {
	best, bestDist := "", 3
	for _, info := range variantTable {
		if d := matchr.DamerauLevenshtein(name, info.name); d < bestDist {
			best, bestDist = info.name, d
		}
	}
	return best, best != ""
}

// ParseVariants parses a comma-separated list of variant names.  "all"
// selects every variant.
func ParseVariants(list string) ([]Variant, error) {
	if strings.TrimSpace(list) == "all" {
		return AllVariants(), nil
	}
	var vs []Variant
	seen := map[Variant]bool{}
	for _, name := range strings.Split(list, ",") {
		v, err := ParseVariant(name)
		if err != nil {
			return nil, err
		}
		if !seen[v] {
			seen[v] = true
			vs = append(vs, v)
		}
	}
	return vs, nil
}
