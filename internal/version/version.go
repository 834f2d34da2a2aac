// ABOUTME: Version constants for the spmp remote client
// ABOUTME: The version string rides in the connection handshake
package version

const (
	// Version is the client release version.
	Version = "0.1.0"

	// Product is the client product name.
	Product = "spmp-remote"

	// Manufacturer identifies the project.
	Manufacturer = "spmp"
)
