package kernel

// Error describes a kernel error. All kernel errors are defined as global
// variables that are pointers to the Error structure so callers can compare
// them by identity.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string

	// Code is the negative value returned to user mode when this error
	// terminates a system call.
	Code Code
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Result returns the signed system call result for e. A nil error maps to
// the supplied success value.
func (e *Error) Result(success int32) int32 {
	if e == nil {
		return success
	}
	return int32(e.Code)
}
