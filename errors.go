package vkframe

import (
	"fmt"
	"os"
	"strings"

	"github.com/andewx/vkframe/hal"
	"github.com/pkg/errors"
)

var (
	// ErrNoDevice is returned when the instance enumerates no adapters.
	ErrNoDevice = errors.New("no GPU device available")
	// ErrDoubleRelease is returned when the shader compiler is released more
	// times than it was acquired.
	ErrDoubleRelease = errors.New("shader compiler released more times than acquired")
	// ErrSurfaceInvalidated signals that the swapchain no longer matches the
	// surface. The frame scheduler recovers from it by rebuilding.
	ErrSurfaceInvalidated = errors.New("surface invalidated")
	// ErrZeroExtent is returned when a swapchain is built for a surface with
	// no area, such as a minimized window.
	ErrZeroExtent = errors.New("surface has zero area")
)

type DeviceCreationError struct {
	Result hal.Result
}

func (e *DeviceCreationError) Error() string {
	return fmt.Sprintf("device creation failed: %s", e.Result.Error())
}

func (e *DeviceCreationError) Unwrap() error { return e.Result }

// NoQueueFamilyError names the queue roles no family could serve.
type NoQueueFamilyError struct {
	Missing []string
}

func (e *NoQueueFamilyError) Error() string {
	return fmt.Sprintf("no queue family supports %s", strings.Join(e.Missing, ", "))
}

// ResourceCreationError reports a failed buffer, image, view, pipeline, fence
// or semaphore creation.
type ResourceCreationError struct {
	Resource string
	Err      error
}

func (e *ResourceCreationError) Error() string {
	return fmt.Sprintf("create %s: %v", e.Resource, e.Err)
}

func (e *ResourceCreationError) Unwrap() error { return e.Err }

// SubmissionError reports a failed queue submission or a present failure
// other than out-of-date and suboptimal.
type SubmissionError struct {
	Op  string
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// CompileError carries the compiler's diagnostic text.
type CompileError struct {
	Stage   hal.ShaderStage
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s shader: %s", e.Stage, e.Message)
}

type SourceNotFoundError struct {
	Path string
	Err  error
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("shader source %q: %v", e.Path, e.Err)
}

func (e *SourceNotFoundError) Unwrap() error { return e.Err }

func resourceError(resource string, err error) error {
	return errors.WithStack(&ResourceCreationError{Resource: resource, Err: err})
}

func submissionError(op string, err error) error {
	return errors.WithStack(&SubmissionError{Op: op, Err: err})
}

// IsSurfaceInvalidated reports whether r means the swapchain must be rebuilt.
func IsSurfaceInvalidated(r hal.Result) bool {
	return r == hal.ErrorOutOfDate || r == hal.Suboptimal
}

var exitFunc = os.Exit

// Fatal runs the finalizers in order, reports err and exits with status 1.
// It does nothing when err is nil.
func Fatal(err error, finalizers ...func()) {
	if err == nil {
		return
	}
	for _, fn := range finalizers {
		fn()
	}
	Logger().Error("fatal", "err", err)
	fmt.Fprintf(os.Stderr, "FATAL: %+v\n", err)
	exitFunc(1)
}

// checkErr turns a panic in the deferring function into an error.
func checkErr(err *error) {
	if v := recover(); v != nil {
		*err = errors.Errorf("%+v", v)
	}
}
