// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rsynx

import (
	"os"
	"time"

	"github.com/pkg/errors"
)

// preserveMetadata copies src's permission bits and access/modification
// timestamps onto dst, per spec.md §4.4. os.Chtimes/os.Chmod are used
// directly: they already provide the portable behavior the spec needs
// and no pack dependency adds anything beyond what they do (see
// SPEC_FULL.md's DOMAIN STACK "not wired" notes).
func preserveMetadata(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrapf(err, "rsynx: statting metadata source %s", src)
	}

	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return errors.Wrapf(err, "rsynx: setting permissions on %s", dst)
	}

	atime := accessTime(info)
	mtime := info.ModTime()
	if err := os.Chtimes(dst, atime, mtime); err != nil {
		return errors.Wrapf(err, "rsynx: setting timestamps on %s", dst)
	}
	return nil
}

// accessTime falls back to mtime when the platform's FileInfo doesn't
// expose atime through the portable os.FileInfo interface; the
// platform-specific accessor in metadata_unix.go overrides this via the
// Sys() escape hatch where available.
var accessTime = func(info os.FileInfo) time.Time {
	return info.ModTime()
}
