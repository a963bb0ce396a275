// Package bundleerr defines the fatal error kinds a build can end with.
package bundleerr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	ResolutionFailure Kind = iota + 1
	TransformFailure
	CycleOverflow
	AssetConflict
	EmissionFailure
)

var (
	ErrResolution = errors.New("resolution failure")
	ErrTransform  = errors.New("transform failure")
	ErrOverflow   = errors.New("cycle overflow")
	ErrConflict   = errors.New("asset conflict")
	ErrEmission   = errors.New("emission failure")
)

func (k Kind) sentinel() error {
	switch k {
	case ResolutionFailure:
		return ErrResolution
	case TransformFailure:
		return ErrTransform
	case CycleOverflow:
		return ErrOverflow
	case AssetConflict:
		return ErrConflict
	case EmissionFailure:
		return ErrEmission
	}
	return nil
}

func (k Kind) String() string {
	switch k {
	case ResolutionFailure:
		return "resolution_failure"
	case TransformFailure:
		return "transform_failure"
	case CycleOverflow:
		return "cycle_overflow"
	case AssetConflict:
		return "asset_conflict"
	case EmissionFailure:
		return "emission_failure"
	}
	return "unknown"
}

// Error is the single fatal error reported by a failed build. The context
// fields that are set depend on the kind; empty fields are omitted from the
// message.
type Error struct {
	Kind      Kind
	Module    string // importing or failing module
	Specifier string // import specifier as written
	Importer  string // module whose import reached the failing Module
	Stage     string // transform stage name
	Format    string // output format
	Asset     string // asset path or content hash
	Msg       string
	Err       error
}

func (e *Error) Error() string {
	parts := []string{e.Kind.sentinel().Error()}
	if e.Importer != "" {
		parts = append(parts, "module "+e.Module, fmt.Sprintf("imported as %q from %s", e.Specifier, e.Importer))
	} else if e.Specifier != "" {
		importer := e.Module
		if importer == "" {
			importer = "<entry>"
		}
		parts = append(parts, fmt.Sprintf("import %q from %s", e.Specifier, importer))
	} else if e.Module != "" {
		parts = append(parts, "module "+e.Module)
	}
	if e.Stage != "" {
		parts = append(parts, "stage "+e.Stage)
	}
	if e.Format != "" {
		parts = append(parts, "format "+e.Format)
	}
	if e.Asset != "" {
		parts = append(parts, "asset "+e.Asset)
	}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ImportedBy records the import edge through which the failing module was
// reached.
func (e *Error) ImportedBy(importer, specifier string) *Error {
	e.Importer, e.Specifier = importer, specifier
	return e
}

// KindOf returns the kind of the first *Error in err's tree, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func Resolution(specifier, importer string, err error) *Error {
	return &Error{Kind: ResolutionFailure, Specifier: specifier, Module: importer, Err: err}
}

func Transform(module, stage string, err error) *Error {
	return &Error{Kind: TransformFailure, Module: module, Stage: stage, Err: err}
}

func Overflow(module string, limit int) *Error {
	return &Error{Kind: CycleOverflow, Module: module, Msg: fmt.Sprintf("graph exceeds %d modules", limit)}
}

func Conflict(asset, module, msg string) *Error {
	return &Error{Kind: AssetConflict, Asset: asset, Module: module, Msg: msg}
}

func Emission(format, msg string) *Error {
	return &Error{Kind: EmissionFailure, Format: format, Msg: msg}
}
