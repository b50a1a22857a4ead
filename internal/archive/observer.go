// Package archive implements the unpack and pack pipelines: parallel chunk
// compression bounded by a worker pool, a single ordered writer with a
// bounded reorder buffer, combined-buffer and shared-chunk slicing, and the
// legacy fixups the format needs. The engine never logs; diagnostics flow
// through the Observer.
package archive

// Observer receives progress events from an operation. Events may be
// emitted from any worker goroutine; implementations are responsible for
// their own thread-safety.
type Observer interface {
	// Start announces the total number of items the operation will
	// process.
	Start(total int)

	// Inc reports n items completed.
	Inc(n int)

	// Info reports a diagnostic message.
	Info(msg string)

	// Warn reports a recoverable problem, such as a legacy fixup or a
	// chunk kept raw after a decode failure.
	Warn(msg string)

	// Finish announces the end of the operation.
	Finish(msg string)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) Start(int)    {}
func (NopObserver) Inc(int)      {}
func (NopObserver) Info(string)  {}
func (NopObserver) Warn(string)  {}
func (NopObserver) Finish(string) {}
