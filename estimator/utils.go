// File: estimator/utils.go

package estimator

import (
	"fmt"
	"strings"
)

// ParseDataType checks input against the supported precisions.
// Unknown values are rejected with the closest supported name as a hint.
func ParseDataType(input string) (DataType, error) {
	d := DataType(input)
	if d.Valid() {
		return d, nil
	}

	names := make([]string, len(DataTypes))
	for i, dt := range DataTypes {
		names[i] = string(dt)
	}
	if closest := closestMatch(input, names); closest != "" {
		return "", fmt.Errorf("invalid precision: %s. Did you mean %s?: %w", input, closest, ErrUnknownDataType)
	}
	return "", fmt.Errorf("invalid precision %q, must be one of %v: %w", input, DataTypes, ErrUnknownDataType)
}

// ParseOptimizer checks input against the supported optimizers.
func ParseOptimizer(input string) (Optimizer, error) {
	o := Optimizer(input)
	if o.Valid() {
		return o, nil
	}

	names := make([]string, len(Optimizers))
	for i, opt := range Optimizers {
		names[i] = string(opt)
	}
	if closest := closestMatch(input, names); closest != "" {
		return "", fmt.Errorf("invalid optimizer: %s. Did you mean %s?: %w", input, closest, ErrUnknownOptimizer)
	}
	return "", fmt.Errorf("invalid optimizer %q, must be one of %v: %w", input, Optimizers, ErrUnknownOptimizer)
}

// closestMatch returns the candidate nearest to input, or "" when nothing is
// closer than rewriting the whole string
func closestMatch(input string, candidates []string) string {
	var closest string
	minDistance := len(input)
	for _, c := range candidates {
		distance := levenshteinDistance(input, c)
		if distance < minDistance {
			minDistance = distance
			closest = c
		}
	}
	return closest
}

// levenshteinDistance calculates the case-insensitive Levenshtein distance between two strings
func levenshteinDistance(s1, s2 string) int {
	s1 = strings.ToUpper(s1)
	s2 = strings.ToUpper(s2)
	m := len(s1)
	n := len(s2)
	d := make([][]int, m+1)
	for i := range d {
		d[i] = make([]int, n+1)
	}
	for i := 0; i <= m; i++ {
		d[i][0] = i
	}
	for j := 0; j <= n; j++ {
		d[0][j] = j
	}
	for j := 1; j <= n; j++ {
		for i := 1; i <= m; i++ {
			if s1[i-1] == s2[j-1] {
				d[i][j] = d[i-1][j-1]
				continue
			}
			d[i][j] = min(d[i-1][j], d[i][j-1], d[i-1][j-1]) + 1
		}
	}
	return d[m][n]
}
