// Package version carries the application identity used in the auth realm,
// the Server header, and the version label on every exported metric.
package version

const (
	// Name is the canonical application name.
	Name = "prometheus-weathermen"

	// Version is the release version. Overridable at link time via
	// -ldflags "-X .../internal/version.Version=x.y.z".
	Version = "0.10.0"
)
