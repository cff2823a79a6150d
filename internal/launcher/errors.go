package launcher

import "errors"

// Failure classes the launcher surfaces to its caller. Lower-level classes
// (manifest.ErrManifest, netutil.ErrNoFreePort, history.ErrNotFound,
// readiness.ErrTimeout, seed.ErrUnknownSeed, *composecli.Error) propagate
// unchanged; these two originate here.
var (
	// ErrLicensing reports a required enterprise code that was neither
	// passed explicitly nor found in the environment. It is raised after
	// the stack is already up, so the full cleanup path applies.
	ErrLicensing = errors.New("enterprise licence code required")

	// ErrTestFailure reports a non-zero exit from the in-container test
	// suite. Tests are not retried.
	ErrTestFailure = errors.New("test suite failed")
)
