// Package version exposes the corral build version.
package version

// version is overridable at build time:
//
//	go build -ldflags "-X github.com/corralhq/corral/internal/version.version=v1.2.3"
var version = "v0.1.0-dev"

// Get returns the current version.
func Get() string {
	return version
}
