//go:build !debug

package reserve

// assertUnreachable is a no-op in release builds; see assert_debug.go.
func assertUnreachable(kind string, r int) {}
