// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build unix

package rsynx

import (
	"os"
	"syscall"
	"time"
)

func init() {
	accessTime = func(info os.FileInfo) time.Time {
		stat, ok := info.Sys().(*syscall.Stat_t)
		if !ok {
			return info.ModTime()
		}
		return time.Unix(stat.Atim.Sec, stat.Atim.Nsec)
	}
}
