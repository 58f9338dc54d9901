package version

// Version is the current version of codedrop.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/codedrop/codedrop/internal/version.Version=v1.0.0'"
var Version = "dev"
