//go:build cgo && linux

// Package abi exports the stable C calling convention of spec §6 for
// language runtime shims: nemb_initialize, nemb_mark_checkpoint and
// nemb_shutdown. It is a thin adapter over pkg/checkpoint — no
// language-runtime-specific marshalling lives here.
package abi

/*
int nemb_initialize(void);
void nemb_mark_checkpoint(const char* name);
void nemb_shutdown(void);
*/
import "C"

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ja7ad/nemb/pkg/checkpoint"
	"github.com/ja7ad/nemb/pkg/timer"
	"golang.org/x/sys/unix"
)

// global is the one process-wide checkpoint recorder spec §9 requires:
// first nemb_initialize creates it, nemb_shutdown tears it down, guarded
// by an atomic flag rather than a package-level init so repeated
// initialize/shutdown cycles within one process are legal.
var (
	globalMu    sync.Mutex
	global      *checkpoint.Recorder
	initialized atomic.Bool
)

//export nemb_initialize
func nemb_initialize() C.int {
	globalMu.Lock()
	defer globalMu.Unlock()

	if initialized.Load() {
		return 1
	}
	global = checkpoint.NewRecorder()
	global.SetEnabled(true)
	initialized.Store(true)
	return 1
}

//export nemb_mark_checkpoint
func nemb_mark_checkpoint(name *C.char) {
	if !initialized.Load() {
		return
	}
	globalMu.Lock()
	rec := global
	globalMu.Unlock()
	if rec == nil {
		return
	}

	kind, regionID, ok := parseCheckpointName(C.GoString(name))
	if !ok {
		return
	}

	threadID := uint64(unix.Gettid())
	_ = rec.MarkCheckpoint(threadID, regionID, kind, timer.Now())
}

//export nemb_shutdown
func nemb_shutdown() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if !initialized.Load() {
		return
	}
	global = nil
	initialized.Store(false)
}

// parseCheckpointName splits the "<kind>:<region_id>:<extra>" wire
// format spec §6 defines. extra is accepted but unused by the core; a
// language shim may put a free-form annotation there for its own
// tooling.
func parseCheckpointName(name string) (checkpoint.Kind, string, bool) {
	parts := strings.SplitN(name, ":", 3)
	if len(parts) < 2 {
		return 0, "", false
	}
	kind, ok := checkpoint.ParseKind(parts[0])
	if !ok {
		return 0, "", false
	}
	if parts[1] == "" {
		return 0, "", false
	}
	return kind, parts[1], true
}
