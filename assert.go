/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package noria

import "fmt"

// assertFailed panics with a diagnostic. Per spec.md §7, an invariant
// violation (misaddressed packet, variant mismatch, replay for an
// unknown tag) is a programmer error, not a recoverable condition --
// the owning domain aborts rather than continue in a state that could
// violate ordering or materialization invariants.
func assertFailed(failure, format string, args ...interface{}) {
	panic(
		fmt.Sprintf(
			fmt.Sprintf("invariant violated, code bug? -- %s -- %s", failure, format),
			args...,
		),
	)
}

func assertTrue(value bool, format string, args ...interface{}) {
	if !value {
		assertFailed("expected true", format, args...)
	}
}

func assertEqual(lhs, rhs interface{}, format string, args ...interface{}) {
	if lhs != rhs {
		assertFailed(fmt.Sprintf("expected %v == %v", lhs, rhs), format, args...)
	}
}

func assertNotEqual(lhs, rhs interface{}, format string, args ...interface{}) {
	if lhs == rhs {
		assertFailed(fmt.Sprintf("expected %v != %v", lhs, rhs), format, args...)
	}
}
