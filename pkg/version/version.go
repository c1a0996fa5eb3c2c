// Package version reports the build version, set at link time with
// -ldflags "-X github.com/cbodonnell/tickrelay/pkg/version.version=v1.2.3".
package version

var version = "dev"

// Get returns the build version.
func Get() string {
	return version
}
