package common

// Version is the release stamped into every extraction result.
// Override at build time with -ldflags "-X github.com/joseph-ayodele/docrouter/internal/common.Version=1.2.3".
var Version = "0.3.0"
