// Package aggregate reduces samples of wei amounts, such as per-block priority
// fees, to a single robust value.
package aggregate

import (
	"math/big"
	"sort"
)

// Mean returns the integer mean of values. Nil entries are skipped; an empty
// input yields zero.
func Mean(values []*big.Int) *big.Int {
	sum := new(big.Int)
	n := 0
	for _, v := range values {
		if v == nil {
			continue
		}
		sum.Add(sum, v)
		n++
	}
	if n == 0 {
		return sum
	}
	return sum.Div(sum, big.NewInt(int64(n)))
}

// sorted returns a sorted copy of the non-nil values
func sorted(values []*big.Int) []*big.Int {
	out := make([]*big.Int, 0, len(values))
	for _, v := range values {
		if v != nil {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Median returns the median of values, averaging the two middle values for even counts
func Median(values []*big.Int) *big.Int {
	s := sorted(values)
	n := len(s)
	switch {
	case n == 0:
		return new(big.Int)
	case n%2 == 1:
		return new(big.Int).Set(s[n/2])
	default:
		m := new(big.Int).Add(s[n/2-1], s[n/2])
		return m.Rsh(m, 1)
	}
}

// FilterOutliers drops values outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR]. Fewer than
// four samples are returned unchanged.
func FilterOutliers(values []*big.Int) []*big.Int {
	s := sorted(values)
	n := len(s)
	if n < 4 {
		return s
	}

	q1 := s[n/4]
	q3 := s[n*3/4]

	// 1.5*IQR computed as 3*IQR/2 to stay in integers
	fence := new(big.Int).Sub(q3, q1)
	fence.Mul(fence, big.NewInt(3))
	fence.Rsh(fence, 1)
	lower := new(big.Int).Sub(q1, fence)
	upper := new(big.Int).Add(q3, fence)

	filtered := make([]*big.Int, 0, n)
	for _, v := range s {
		if v.Cmp(lower) >= 0 && v.Cmp(upper) <= 0 {
			filtered = append(filtered, v)
		}
	}
	return filtered
}
