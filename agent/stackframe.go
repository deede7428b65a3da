package agent

import (
	"runtime"
	"strings"
)

// StackFrame is one frame of a call stack extracted from an error
// value for the investigate prompt's error context.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// ExtractCallStack returns a call stack for err. A nil err yields nil,
// and an err that records its own frames (a StackFrames() []StackFrame
// method) yields those frames as-is. Otherwise it walks the current
// goroutine's call stack starting at ExtractCallStack's caller,
// skipping Go runtime-internal and standard-library frames (package
// "runtime" and "testing"), mirroring the way the launcher skips
// site-packages frames when building an error's call stack. That walk
// describes where ExtractCallStack was called, not where err was
// created, since Go errors do not carry a stack unless the error type
// records one.
func ExtractCallStack(err error) []StackFrame {
	if err == nil {
		return nil
	}
	if sw, ok := err.(interface{ StackFrames() []StackFrame }); ok {
		return sw.StackFrames()
	}

	const maxFrames = 32
	pc := make([]uintptr, maxFrames)
	n := runtime.Callers(2, pc)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pc[:n])

	var out []StackFrame
	for {
		frame, more := frames.Next()
		if !skipFrame(frame.Function) {
			out = append(out, StackFrame{Function: frame.Function, File: frame.File, Line: frame.Line})
		}
		if !more {
			break
		}
	}
	return out
}

func skipFrame(function string) bool {
	return strings.HasPrefix(function, "runtime.") ||
		strings.HasPrefix(function, "testing.") ||
		strings.Contains(function, "/runtime/")
}
