// Package version exposes build-time version information.
package version

// These variables are set at build time using ldflags.
// Example: go build -ldflags "-X github.com/odgrim/abathur-swarm-sub016/internal/version.Version=v1.0.0"
var (
	// Version is the semantic version of the application.
	Version = "dev"

	// Commit is the git commit SHA at build time.
	Commit = "unknown"

	// Date is the date when the binary was built.
	Date = "unknown"
)

// Info returns a single-line version string for display.
func Info() string {
	return Version + " (commit " + Commit + ", built " + Date + ")"
}
