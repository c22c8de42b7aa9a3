// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pagefile

import (
	"os"

	"golang.org/x/sys/unix"
)

// Lookups jump between tree pages and blocks; tell the kernel not to
// readahead.  Advisory only, safe to ignore failure.
func adviseRandom(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_RANDOM)
}
