package freeze

import "errors"

var (
	// ErrSwapFailed indicates the live content could not be replaced. The page
	// is left as it was before the restore.
	ErrSwapFailed = errors.New("content swap failed")

	// ErrScriptLoad indicates a script failed to load during a restore.
	ErrScriptLoad = errors.New("script load failed")

	// ErrNotBooted indicates an operation that needs an armed page ran before Boot.
	ErrNotBooted = errors.New("freezer not booted")
)
