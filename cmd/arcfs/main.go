// Copyright (c) the arcfs authors
// Licensed under the MIT license

// Command arcfs is a small driver that exercises the arcfs reader end to
// end: open an archive, load labels, answer queries, print a tree. It calls
// GetName, GetDirListing, GetFileMetadata and GetFileContents; ReadRange is
// not used by any subcommand. It is not the FUSE filesystem itself (out of scope
// per spec.md §1) — just the minimal harness a human or a test suite can
// run directly.
package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ultimate-research/arcfs"
)

func main() {
	app := &cli.App{
		Name:  "arcfs",
		Usage: "inspect a Smash Ultimate ARC archive",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "labels", Aliases: []string{"l"}, Usage: "label file (TSV or plain-line paths)"},
			&cli.IntFlag{Name: "cache-size", Usage: "decompression cache capacity", Value: 0},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging"},
		},
		Commands: []*cli.Command{
			newStatCommand(),
			newLsCommand(),
			newCatCommand(),
			newTreeCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "arcfs:", err)
		os.Exit(1)
	}
}

func openFromContext(c *cli.Context, archivePath string) (*arcfs.Reader, error) {
	if c.Bool("verbose") {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
	var opts []arcfs.Option
	if p := c.String("labels"); p != "" {
		opts = append(opts, arcfs.WithLabelFile(p))
	}
	if n := c.Int("cache-size"); n > 0 {
		opts = append(opts, arcfs.WithCacheSize(n))
	}
	return arcfs.Open(archivePath, opts...)
}

// resolveHash accepts either a literal hash-40 (bare hex, optionally
// prefixed 0x) or a path, which is hashed with arcfs.NewHash40.
func resolveHash(s string) arcfs.Hash40 {
	trimmed := strings.TrimPrefix(s, "0x")
	if v, err := strconv.ParseUint(trimmed, 16, 40); err == nil && !strings.Contains(s, "/") {
		return arcfs.Hash40(v)
	}
	return arcfs.NewHash40(s)
}

func newStatCommand() *cli.Command {
	return &cli.Command{
		Name:      "stat",
		Usage:     "print metadata for a path or hash-40",
		ArgsUsage: "<archive> <path-or-hash>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("stat: expected <archive> <path-or-hash>")
			}
			r, err := openFromContext(c, c.Args().Get(0))
			if err != nil {
				return err
			}
			defer r.Close()

			h := resolveHash(c.Args().Get(1))
			md, err := r.GetFileMetadata(h)
			if err != nil {
				return fmt.Errorf("stat %s: %w", h, err)
			}
			name, _ := r.GetName(h)
			fmt.Printf("hash=%s name=%q kind=%s decomp_size=%d\n", h, name, md.Kind, md.DecompSize)
			return nil
		},
	}
}

func newLsCommand() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "list a directory",
		ArgsUsage: "<archive> <path-or-hash>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("ls: expected <archive> <path-or-hash>")
			}
			r, err := openFromContext(c, c.Args().Get(0))
			if err != nil {
				return err
			}
			defer r.Close()

			h := resolveHash(c.Args().Get(1))
			listing, ok := r.GetDirListing(h)
			if !ok {
				return fmt.Errorf("ls %s: not a directory", h)
			}
			for _, e := range listing {
				suffix := ""
				if e.Kind == arcfs.KindDirectory {
					suffix = "/"
				}
				fmt.Printf("%s%s\n", e.Stem, suffix)
			}
			return nil
		},
	}
}

func newCatCommand() *cli.Command {
	return &cli.Command{
		Name:      "cat",
		Usage:     "print a file's decompressed contents to stdout",
		ArgsUsage: "<archive> <path-or-hash>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("cat: expected <archive> <path-or-hash>")
			}
			r, err := openFromContext(c, c.Args().Get(0))
			if err != nil {
				return err
			}
			defer r.Close()

			h := resolveHash(c.Args().Get(1))
			data, err := r.GetFileContents(h)
			if err != nil {
				return fmt.Errorf("cat %s: %w", h, err)
			}
			_, err = io.Copy(os.Stdout, bytes.NewReader(data))
			return err
		},
	}
}

func newTreeCommand() *cli.Command {
	return &cli.Command{
		Name:      "tree",
		Usage:     "walk the whole model and print it indented",
		ArgsUsage: "<archive>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("tree: expected <archive>")
			}
			r, err := openFromContext(c, c.Args().Get(0))
			if err != nil {
				return err
			}
			defer r.Close()

			printTree(r, arcfs.RootHash40, 0)
			return nil
		},
	}
}

func printTree(r *arcfs.Reader, h arcfs.Hash40, depth int) {
	listing, ok := r.GetDirListing(h)
	if !ok {
		return
	}
	sort.Slice(listing, func(i, j int) bool { return listing[i].Stem < listing[j].Stem })
	for _, e := range listing {
		fmt.Printf("%s%s\n", strings.Repeat("  ", depth), e.Stem)
		if e.Kind == arcfs.KindDirectory {
			printTree(r, e.Hash, depth+1)
		}
	}
}
