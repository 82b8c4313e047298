package ledger

import (
	"fmt"
	"runtime"
)

// Injected at build time through -ldflags.
var (
	CurrentVersion = "dev"
	CurrentBranch  = "unknown"
	CurrentCommit  = "unknown"
	BuildDate      = "unknown"
)

var (
	Platform  = fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	GoVersion = runtime.Version()
)
