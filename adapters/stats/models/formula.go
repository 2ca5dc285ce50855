package models

import (
	"fmt"
	"strings"

	"perchmp/domain/core"
	"perchmp/domain/stats"
)

// Formula is a parsed R-style model formula
type Formula struct {
	Response stats.Term
	Fixed    []stats.Term
	Random   string
}

// ParseFormula parses formulas such as
//
//	log(TL) ~ log1p(MPconcentration) + FL + (1|corral)
//	TL ~ factor(treatment)
//
// Plain names are resolved against the frame at fit time: a column that only exists as
// labels becomes a categorical term.
func ParseFormula(s string) (Formula, error) {
	lhs, rhs, ok := strings.Cut(s, "~")
	if !ok {
		return Formula{}, fmt.Errorf("%w: formula %q has no '~'", core.ErrUnsupportedModel, s)
	}

	var f Formula
	resp, err := parseTerm(strings.TrimSpace(lhs))
	if err != nil {
		return Formula{}, err
	}
	if resp.Categorical {
		return Formula{}, fmt.Errorf("%w: categorical response in %q", core.ErrUnsupportedModel, s)
	}
	f.Response = resp

	for _, part := range splitTopLevel(rhs, '+') {
		part = strings.TrimSpace(part)
		switch {
		case part == "" || part == "1":
			continue
		case strings.HasPrefix(part, "(") && strings.HasSuffix(part, ")"):
			inner := strings.TrimSpace(part[1 : len(part)-1])
			one, group, ok := strings.Cut(inner, "|")
			if !ok || strings.TrimSpace(one) != "1" {
				return Formula{}, fmt.Errorf("%w: only random intercepts (1|group) are supported, got %q", core.ErrUnsupportedModel, part)
			}
			if f.Random != "" {
				return Formula{}, fmt.Errorf("%w: more than one random intercept", core.ErrUnsupportedModel)
			}
			f.Random = strings.TrimSpace(group)
		default:
			t, err := parseTerm(part)
			if err != nil {
				return Formula{}, err
			}
			f.Fixed = append(f.Fixed, t)
		}
	}
	return f, nil
}

// Apply copies the formula's terms onto a spec
func (f Formula) Apply(spec stats.ModelSpec) stats.ModelSpec {
	spec.Response = f.Response
	spec.Fixed = append([]stats.Term(nil), f.Fixed...)
	spec.Random = f.Random
	return spec
}

func parseTerm(s string) (stats.Term, error) {
	if s == "" {
		return stats.Term{}, fmt.Errorf("%w: empty term", core.ErrUnsupportedModel)
	}
	open := strings.Index(s, "(")
	if open < 0 {
		return stats.Term{Column: s}, nil
	}
	if !strings.HasSuffix(s, ")") {
		return stats.Term{}, fmt.Errorf("%w: malformed term %q", core.ErrUnsupportedModel, s)
	}
	fn := strings.TrimSpace(s[:open])
	col := strings.TrimSpace(s[open+1 : len(s)-1])
	if col == "" {
		return stats.Term{}, fmt.Errorf("%w: malformed term %q", core.ErrUnsupportedModel, s)
	}

	switch fn {
	case "factor", "as.factor":
		return stats.Term{Column: col, Categorical: true}, nil
	case "log":
		return stats.Term{Column: col, Transform: stats.TransformLog}, nil
	case "log1p":
		return stats.Term{Column: col, Transform: stats.TransformLog1p}, nil
	case "sqrt":
		return stats.Term{Column: col, Transform: stats.TransformSqrt}, nil
	}
	return stats.Term{}, fmt.Errorf("%w: unknown function %q in term %q", core.ErrUnsupportedModel, fn, s)
}

func splitTopLevel(s string, sep rune) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
