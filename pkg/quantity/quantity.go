// Copyright the go-heyvl authors
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package quantity implements the extended non-negative real number domain
// in which expectations, probabilities and runtimes are valued.  A quantity
// is either a finite non-negative rational, or the distinguished value
// infinity.  Arithmetic follows the extended-real conventions used by
// expectation calculi; in particular, multiplication of infinity by zero is
// defined to be zero, and subtraction saturates at zero.
package quantity

import (
	"fmt"
	"math/big"
)

// Quantity is an extended non-negative real value.  The zero value of this
// type is the quantity zero.  Quantities are immutable; all operations
// return fresh values.
type Quantity struct {
	// Finite value, only meaningful when inf is false.  A nil rat denotes
	// zero, so that the zero value of Quantity is usable directly.
	rat *big.Rat
	// Infinity flag.
	inf bool
}

// Zero returns the quantity 0.
func Zero() Quantity {
	return Quantity{}
}

// One returns the quantity 1.
func One() Quantity {
	return Quantity{rat: big.NewRat(1, 1)}
}

// Infinity returns the distinguished infinite quantity.
func Infinity() Quantity {
	return Quantity{inf: true}
}

// FromUint64 constructs a finite quantity from a given natural number.
func FromUint64(n uint64) Quantity {
	return Quantity{rat: new(big.Rat).SetUint64(n)}
}

// FromRat constructs a finite quantity from a given rational.  Negative
// rationals violate the domain invariant and, hence, indicate a bug in the
// caller rather than a user error.
func FromRat(r *big.Rat) Quantity {
	if r.Sign() < 0 {
		panic(fmt.Sprintf("negative quantity: %s", r.String()))
	}
	//
	return Quantity{rat: new(big.Rat).Set(r)}
}

// FromString parses a quantity from its textual form, accepting "oo" and
// the infinity glyph for the infinite value, and otherwise any non-negative
// rational (e.g. "3", "1/2", "0.25").
func FromString(s string) (Quantity, error) {
	if s == "oo" || s == "∞" || s == "inf" {
		return Infinity(), nil
	}
	//
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Zero(), fmt.Errorf("malformed quantity \"%s\"", s)
	} else if r.Sign() < 0 {
		return Zero(), fmt.Errorf("negative quantity \"%s\"", s)
	}
	//
	return Quantity{rat: r}, nil
}

// IsInf checks whether this is the infinite quantity.
func (q Quantity) IsInf() bool {
	return q.inf
}

// IsZero checks whether this is the quantity 0.
func (q Quantity) IsZero() bool {
	return !q.inf && (q.rat == nil || q.rat.Sign() == 0)
}

// Rat returns the finite value of this quantity.  Calling this on the
// infinite quantity is a contract violation.
func (q Quantity) Rat() *big.Rat {
	if q.inf {
		panic("taking finite value of infinity")
	} else if q.rat == nil {
		return new(big.Rat)
	}
	//
	return new(big.Rat).Set(q.rat)
}

// Add returns the sum of two quantities, where infinity + x = infinity for
// any x.
func (q Quantity) Add(other Quantity) Quantity {
	if q.inf || other.inf {
		return Infinity()
	}
	//
	return Quantity{rat: new(big.Rat).Add(q.Rat(), other.Rat())}
}

// Mul returns the product of two quantities, where infinity times any
// non-zero quantity is infinity, and infinity times zero is zero.
func (q Quantity) Mul(other Quantity) Quantity {
	// The zero cases must be handled first, since they override infinity.
	if q.IsZero() || other.IsZero() {
		return Zero()
	} else if q.inf || other.inf {
		return Infinity()
	}
	//
	return Quantity{rat: new(big.Rat).Mul(q.Rat(), other.Rat())}
}

// Monus returns the truncated difference of two quantities, saturating at
// zero.  Anything monus infinity is zero; infinity monus any finite
// quantity is infinity.
func (q Quantity) Monus(other Quantity) Quantity {
	if other.inf {
		return Zero()
	} else if q.inf {
		return Infinity()
	}
	//
	diff := new(big.Rat).Sub(q.Rat(), other.Rat())
	if diff.Sign() < 0 {
		return Zero()
	}
	//
	return Quantity{rat: diff}
}

// Min returns the pointwise minimum of two quantities.
func (q Quantity) Min(other Quantity) Quantity {
	if q.Cmp(other) <= 0 {
		return q
	}
	//
	return other
}

// Max returns the pointwise maximum of two quantities.
func (q Quantity) Max(other Quantity) Quantity {
	if q.Cmp(other) >= 0 {
		return q
	}
	//
	return other
}

// Cmp compares two quantities under the total order in which infinity is
// the maximum element, returning -1, 0 or +1.
func (q Quantity) Cmp(other Quantity) int {
	switch {
	case q.inf && other.inf:
		return 0
	case q.inf:
		return 1
	case other.inf:
		return -1
	}
	//
	return q.Rat().Cmp(other.Rat())
}

// String returns a textual representation of this quantity, using "oo" for
// infinity and the shortest exact rational form otherwise.
func (q Quantity) String() string {
	if q.inf {
		return "oo"
	}
	//
	r := q.Rat()
	if r.IsInt() {
		return r.Num().String()
	}
	//
	return r.String()
}
