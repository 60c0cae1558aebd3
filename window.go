package vkframe

// Window is the platform collaborator driving the frame loop.
type Window interface {
	// FramebufferSize returns the drawable size in pixels.
	FramebufferSize() (width, height int)
	// Resized reports whether the window was resized since the last call
	// and clears the flag.
	Resized() bool
	// PollEvents processes pending events without blocking.
	PollEvents()
	// WaitEvents blocks until at least one event arrives.
	WaitEvents()
	ShouldClose() bool
}
