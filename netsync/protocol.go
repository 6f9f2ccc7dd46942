// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package netsync implements the network driver from spec.md §4.6: a
// line-framed request/response protocol between a client holding the
// source and a server holding the destination, wrapping the same
// rsynx engine used by the local driver. File sync only: directory sync
// over the network is explicitly refused by the server.
package netsync

const (
	// DefaultPort is the port used in both client and server mode when
	// none is specified, per spec.md §6.
	DefaultPort = 7878

	cmdFile   = "FILE"
	cmdBlk    = "BLK"
	cmdBlkEnd = "BLKEND"
	cmdNoBlk  = "NOBLK"
	cmdData   = "DATA"
	cmdCData  = "CDATA" // compressed literal payload (Config.Compress extension)
	cmdCopy   = "COPY"
	cmdDone   = "DONE"
)
