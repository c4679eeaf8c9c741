// Package quantity parses Kubernetes-style CPU and memory quantity strings
// into comparable magnitudes and computes deltas between them.
//
// CPU magnitudes are expressed in cores (so "500m" = 0.5). Memory magnitudes
// are expressed in Mi (so "1Gi" = 1024). An unrecognized suffix is a typed
// parse failure, never a silent zero: a zero that came from a failed parse is
// indistinguishable from a real zero and would produce bogus change reports.
package quantity

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidQuantity is returned (wrapped) for any string that is not a
// recognized resource quantity. Callers must surface it, not substitute zero.
var ErrInvalidQuantity = errors.New("invalid resource quantity")

// Class is the unit class of a quantity.
type Class string

const (
	ClassCPU    Class = "cpu"    // magnitude in cores
	ClassMemory Class = "memory" // magnitude in Mi
	ClassBare   Class = "bare"   // unsuffixed numeric, magnitude as written
)

// Quantity is a parsed resource value: the original string, its unit class,
// and a magnitude normalized within that class.
type Quantity struct {
	Raw   string
	Class Class
	Value float64
}

// IsZero reports whether the magnitude is zero.
func (q Quantity) IsZero() bool { return q.Value == 0 }

func (q Quantity) String() string { return q.Raw }

// Zero returns a declared zero quantity of the given class. Used by callers
// that must default an absent field explicitly (as opposed to a parse failure).
func Zero(class Class) Quantity {
	return Quantity{Raw: "0", Class: class, Value: 0}
}

// Parse converts a quantity string into a Quantity. Recognized forms:
//
//	"500m"  -> 0.5 cores      (millicores)
//	"2"     -> 2 (bare; cores when used in a CPU position)
//	"512Ki" -> 0.5 Mi
//	"512Mi" -> 512 Mi
//	"1Gi"   -> 1024 Mi
//
// Anything else fails with ErrInvalidQuantity.
func Parse(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Quantity{}, fmt.Errorf("%w: empty string", ErrInvalidQuantity)
	}

	type suffix struct {
		unit   string
		class  Class
		factor float64
	}
	// Longest suffixes first so "Mi" is not matched as bare "i".
	suffixes := []suffix{
		{"Ki", ClassMemory, 1.0 / 1024},
		{"Mi", ClassMemory, 1},
		{"Gi", ClassMemory, 1024},
		{"m", ClassCPU, 1.0 / 1000},
	}

	for _, suf := range suffixes {
		if !strings.HasSuffix(s, suf.unit) {
			continue
		}
		num := strings.TrimSuffix(s, suf.unit)
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return Quantity{}, fmt.Errorf("%w: %q has non-numeric value %q", ErrInvalidQuantity, s, num)
		}
		if v < 0 {
			return Quantity{}, fmt.Errorf("%w: %q is negative", ErrInvalidQuantity, s)
		}
		return Quantity{Raw: s, Class: suf.class, Value: v * suf.factor}, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("%w: unrecognized quantity %q", ErrInvalidQuantity, s)
	}
	if v < 0 {
		return Quantity{}, fmt.Errorf("%w: %q is negative", ErrInvalidQuantity, s)
	}
	return Quantity{Raw: s, Class: ClassBare, Value: v}, nil
}

// Direction classifies a change between two quantities.
type Direction string

const (
	Increased         Direction = "increased"
	Decreased         Direction = "decreased"
	Unchanged         Direction = "unchanged"
	IncreasedFromZero Direction = "increased-from-zero"
)

// ChangeDescription describes the delta between two quantities of the same
// class. Percent is rounded to one decimal and is zero for the
// increase-from-zero case, where no meaningful percentage exists.
type ChangeDescription struct {
	Direction Direction
	Percent   float64
	From      string
	To        string
}

// PercentChange computes the relative change from one quantity to another.
// A zero starting point is reported as an absolute increase, never a
// division error.
func PercentChange(from, to Quantity) ChangeDescription {
	d := ChangeDescription{From: from.Raw, To: to.Raw}

	if from.Value == 0 {
		if to.Value == 0 {
			d.Direction = Unchanged
			return d
		}
		d.Direction = IncreasedFromZero
		return d
	}

	pct := (to.Value - from.Value) / from.Value * 100
	pct = math.Round(pct*10) / 10

	switch {
	case pct > 0:
		d.Direction = Increased
	case pct < 0:
		d.Direction = Decreased
	default:
		d.Direction = Unchanged
	}
	d.Percent = math.Abs(pct)
	return d
}

// String renders the change the way it appears in justifications and tickets.
func (d ChangeDescription) String() string {
	switch d.Direction {
	case IncreasedFromZero:
		return fmt.Sprintf("Increased from 0 to %s", d.To)
	case Increased:
		return fmt.Sprintf("Increased by %.1f%% (from %s to %s)", d.Percent, d.From, d.To)
	case Decreased:
		return fmt.Sprintf("Decreased by %.1f%% (from %s to %s)", d.Percent, d.From, d.To)
	default:
		return "No change"
	}
}
