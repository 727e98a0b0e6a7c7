//go:build linux

package gateway

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// PinCurrentGoroutineToCore locks the calling goroutine to its current OS
// thread (runtime.LockOSThread) and restricts that thread's scheduling to
// core. It must be called from the goroutine that should be pinned — gap
// manager and sender loops call it once at the top of their run loop when a
// core assignment is configured.
//
// Grounded on original_source/src/manager/outbound_message_manager.cpp's
// pinThreadToCore (the pthread_setaffinity_np branch) and
// platform_detector.cpp's HAS_THREAD_AFFINITY=1 Linux case: full support,
// failure is reported but never fatal.
func PinCurrentGoroutineToCore(core int) error {
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(core)

	if err := unix.SchedSetaffinity(unix.Gettid(), &set); err != nil {
		return fmt.Errorf("gateway: pin to core %d: %w", core, err)
	}
	return nil
}

// SupportsThreadPinning reports whether this platform can pin a goroutine's
// underlying OS thread to a specific core. Always true on Linux.
func SupportsThreadPinning() bool { return true }
