//go:build debug

package reserve

import "fmt"

// assertUnreachable panics in debug builds when a reserve clamp fires,
// since that signals a bug in an upstream feasibility check rather than
// a condition the engine should tolerate at runtime. Release builds
// (the default) only log the warning — see assert_release.go.
func assertUnreachable(kind string, r int) {
	panic(fmt.Sprintf("reserve: %s reserve clamp fired with value %d — feasibility check upstream is broken", kind, r))
}
