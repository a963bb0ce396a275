package builder

import "github.com/libforge/libforge/internal/bundleerr"

// Build errors match one of these with errors.Is.
var (
	ErrResolution = bundleerr.ErrResolution
	ErrTransform  = bundleerr.ErrTransform
	ErrOverflow   = bundleerr.ErrOverflow
	ErrConflict   = bundleerr.ErrConflict
	ErrEmission   = bundleerr.ErrEmission
)

// Error is the typed form of a build error, carrying the failing module,
// import, stage, format or asset.
type Error = bundleerr.Error
