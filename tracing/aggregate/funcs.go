/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package aggregate

import (
	"fmt"
	"strconv"
	"strings"
)

// Average is the arithmetic mean.
func Average(values []any) (float64, error) {
	nums, err := Floats(values)
	if err != nil {
		return 0, err
	}
	if len(nums) == 0 {
		return 0, ErrNoData
	}
	var sum float64
	for _, n := range nums {
		sum += n
	}
	return sum / float64(len(nums)), nil
}

// Min is the smallest value.
func Min(values []any) (float64, error) {
	nums, err := Floats(values)
	if err != nil {
		return 0, err
	}
	if len(nums) == 0 {
		return 0, ErrNoData
	}
	out := nums[0]
	for _, n := range nums[1:] {
		out = min(out, n)
	}
	return out, nil
}

// Max is the largest value.
func Max(values []any) (float64, error) {
	nums, err := Floats(values)
	if err != nil {
		return 0, err
	}
	if len(nums) == 0 {
		return 0, ErrNoData
	}
	out := nums[0]
	for _, n := range nums[1:] {
		out = max(out, n)
	}
	return out, nil
}

// Count is the number of values, whatever their type.
func Count(values []any) (float64, error) {
	return float64(len(values)), nil
}

// Funcs maps the built-in aggregations by name.
var Funcs = map[string]AggregationFunc{
	"average": Average,
	"mean":    Average,
	"min":     Min,
	"max":     Max,
	"count":   Count,
}

// Lookup returns the built-in aggregation called name.
func Lookup(name string) (AggregationFunc, error) {
	fn, ok := Funcs[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown aggregation %q", name)
	}
	return fn, nil
}

// Floats converts decoded evaluation values to numbers. Booleans count as 0
// and 1 and numeric strings are parsed.
func Floats(values []any) ([]float64, error) {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case int64:
			f = float64(n)
		case int:
			f = float64(n)
		case bool:
			if n {
				f = 1
			}
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return nil, fmt.Errorf("value %q is not numeric", n)
			}
			f = parsed
		default:
			return nil, fmt.Errorf("value of type %T is not numeric", v)
		}
		out = append(out, f)
	}
	return out, nil
}
