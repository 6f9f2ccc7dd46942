// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Command rsynx is the CLI entrypoint described in spec.md §6: it drives
// the local and network drivers from a single source/destination pair
// plus a handful of flags.
package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/AsheeHuang/rsynx"
	"github.com/AsheeHuang/rsynx/local"
	"github.com/AsheeHuang/rsynx/netsync"
)

var (
	serverMode       bool
	port             int
	blockSize        int
	preserveMetadata bool
	deleteExtraneous bool
	compress         bool
	showProgress     bool

	rootCmd = &cobra.Command{
		Use:   "rsynx <source> <destination>",
		Short: "Delta-transfer file and directory synchronizer",
		Long: `rsynx synchronizes a source file or directory onto a destination,
transferring only the bytes that changed since the last sync.

In client mode (the default), source and destination may both be local
paths, in which case rsynx compares them directly. Passing a
destination of the form host:path synchronizes source onto path on a
remote rsynx server at host instead, connecting on the --port port.

In server mode (--server), no positional arguments are given: the
destination path for each incoming sync is supplied per-connection by
the client over the wire.`,
		Args: cobra.RangeArgs(0, 2),
		RunE: runRoot,
	}
)

func init() {
	rootCmd.Flags().BoolVarP(&serverMode, "server", "s", false, "run as a network server, listening for an incoming sync")
	rootCmd.Flags().IntVarP(&port, "port", "p", netsync.DefaultPort, "TCP port to listen on or connect to")
	rootCmd.Flags().IntVarP(&blockSize, "block-size", "b", rsynx.DefaultBlockSize, "checksum block size in bytes")
	rootCmd.Flags().BoolVarP(&preserveMetadata, "metadata", "m", false, "preserve source permission bits and modification time on the destination")
	rootCmd.Flags().BoolVarP(&deleteExtraneous, "delete", "d", false, "delete destination entries absent from source (directory sync only)")
	rootCmd.Flags().BoolVar(&compress, "compress", false, "compress literal data sent over the network")
	rootCmd.Flags().BoolVar(&showProgress, "progress", false, "show a progress bar during local sync")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func buildConfig() rsynx.Config {
	return rsynx.Config{
		BlockSize:        blockSize,
		PreserveMetadata: preserveMetadata,
		DeleteExtraneous: deleteExtraneous,
		Compress:         compress,
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg := buildConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if serverMode {
		if len(args) != 0 {
			return rsynx.ErrConfigInvalid
		}
		glog.Infof("rsynx server listening on port %d", port)
		server := netsync.NewServer(cfg)
		return server.Serve(port)
	}

	if len(args) != 2 {
		return rsynx.ErrConfigInvalid
	}
	source, destination := args[0], args[1]

	var result rsynx.TransferResult
	var err error
	if host, path, ok := splitRemote(destination); ok {
		client := netsync.NewClient(cfg)
		result, err = client.Sync(fmt.Sprintf("%s:%d", host, port), source, path)
	} else {
		syncer := local.NewSyncer(cfg)
		syncer.ShowProgress = showProgress
		result, err = syncer.Sync(source, destination)
	}
	if err != nil {
		return err
	}

	printSummary(result)
	return nil
}

// splitRemote recognizes the host:path destination syntax: everything
// before the first colon is the peer host, everything after is the
// remote path. A destination with no colon is a local path.
func splitRemote(destination string) (host, path string, ok bool) {
	for i := 0; i < len(destination); i++ {
		if destination[i] == ':' {
			return destination[:i], destination[i+1:], true
		}
	}
	return "", "", false
}

func printSummary(result rsynx.TransferResult) {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("sync complete: %s new, %s reused\n",
		green(humanize.Bytes(result.NewBytes)),
		humanize.Bytes(result.ReusedBytes))
}
