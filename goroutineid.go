package corotask

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID returns a stable identifier for the calling goroutine, used
// as the key into Runtime's thread registry, the same role
// threading.get_ident() plays in the original implementation's
// Thread._by_ident map. The standard library has no public API for this;
// parsing the first line of runtime.Stack's output is the conventional
// substitute, used here in place of a dedicated helper package that, in
// this retrieval pack, carried no retrievable implementation (see
// DESIGN.md).
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if idx := bytes.Index(b, []byte(prefix)); idx >= 0 {
		b = b[idx+len(prefix):]
	}
	if idx := bytes.IndexByte(b, ' '); idx >= 0 {
		b = b[:idx]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		// Should be unreachable given the fixed "goroutine <N> [...]"
		// format of runtime.Stack; fall back to 0 (treated as a single
		// shared identity) rather than panicking from a debug helper.
		return 0
	}
	return id
}
