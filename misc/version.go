// Package misc keeps build time program identification.
package misc

// Set by the linker: -ldflags "-X sox/misc.version=... -X sox/misc.githash=..."
var (
	version = "dev"
	githash = "unknown"
)

const appName = "sox"

// GetAppName returns program name used for logs, reports and temporary files.
func GetAppName() string { return appName }

func GetVersion() string { return version }

func GetGitHash() string { return githash }
