package build

import "fmt"

// Release is the build's release type: "dev", "testing", or "standard".
// It is a var, not a const, so that test binaries can flip it.
var Release = "standard"

// DEBUG indicates whether extra invariant-checking and verbose logging is
// enabled for this build.
var DEBUG = false

// Version is the chunker release version string, reported in logs and by
// the chunkerd/chunkerc `version` subcommands.
var Version = "0.1.0"

// IssuesURL is where users are pointed for bug reports.
const IssuesURL = "https://github.com/chunkernet/chunker/issues"

// Critical should be called when a condition is reached that should never be
// possible if the code is operating as intended. In "dev" and "testing"
// releases it panics immediately so the bug surfaces during development; in
// a "standard" release it logs instead, on the theory that a user's node
// should keep running rather than crash on an invariant it can't fix.
func Critical(v ...interface{}) {
	msg := "Critical error: " + fmt.Sprintln(v...)
	if Release == "standard" {
		fmt.Print(msg)
		return
	}
	panic(msg)
}
