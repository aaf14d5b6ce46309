package gpu

import (
	"errors"
	"fmt"
)

// Kind classifies a failed step.
type Kind uint8

const (
	KindArgument Kind = iota + 1
	KindNoDevices
	KindContextCreate
	KindBuild
	KindKernel
	KindQueue
	KindAllocation
	KindBinding
	KindDispatch
	KindMapping
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNoDevices       = errors.New("no compute devices available")
	ErrContextCreate   = errors.New("cannot create execution context")
	ErrBuild           = errors.New("program build failed")
	ErrKernel          = errors.New("cannot extract kernel")
	ErrQueue           = errors.New("cannot create command queue")
	ErrAllocation      = errors.New("buffer allocation failed")
	ErrBinding         = errors.New("argument binding failed")
	ErrDispatch        = errors.New("kernel dispatch failed")
	ErrMapping         = errors.New("pixel mapping failed")

	// ErrNotUsable is returned by every device-touching operation once the
	// context has been flagged invalid.
	ErrNotUsable = errors.New("compute context not usable")
	ErrClosed    = errors.New("compute context closed")

	ErrAlreadyMapped = fmt.Errorf("%w: pixel buffer already mapped", ErrMapping)
	ErrNotMapped     = fmt.Errorf("%w: pixel buffer not mapped", ErrMapping)
	ErrMapMismatch   = fmt.Errorf("%w: unmap handle does not match the outstanding map", ErrMapping)
	ErrPixelsMapped  = fmt.Errorf("%w: pixel buffer is mapped; unmap before dispatch", ErrDispatch)
)

func (k Kind) sentinel() error {
	switch k {
	case KindArgument:
		return ErrInvalidArgument
	case KindNoDevices:
		return ErrNoDevices
	case KindContextCreate:
		return ErrContextCreate
	case KindBuild:
		return ErrBuild
	case KindKernel:
		return ErrKernel
	case KindQueue:
		return ErrQueue
	case KindAllocation:
		return ErrAllocation
	case KindBinding:
		return ErrBinding
	case KindDispatch:
		return ErrDispatch
	case KindMapping:
		return ErrMapping
	default:
		return nil
	}
}

func (k Kind) String() string {
	if err := k.sentinel(); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Failure is the recorded outcome of one failed step.
type Failure struct {
	Step    string // e.g. "build", "buffer:scene", "bind:cells"
	Kind    Kind
	Message string // diagnostic text, includes the build log for build failures
	Err     error  // underlying cause, may be nil
}

func (f *Failure) Error() string {
	msg := f.Step + ": " + f.Kind.String()
	if f.Message != "" {
		msg += ": " + f.Message
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (f *Failure) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := f.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	return errs
}
