// Package textutil provides filename and path-segment sanitisation.
//
// Input is unicode-normalised so accented characters fold to their ASCII base
// before unsafe characters are replaced.
package textutil
