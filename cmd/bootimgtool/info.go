package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/apex/log"
	"github.com/cespare/xxhash/v2"
	"github.com/spf13/cobra"

	bootimg "github.com/chenxiaolong/DualBootPatcher-sub001"
)

var infoJSON bool

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info [image]",
		Short: "Show the format, header and entries of a boot image",
		Long: `The info command detects the layout of a boot image and prints its
header fields along with the size and xxhash64 digest of every entry.

When no image is given and the terminal is interactive, the path is
prompted for.

Example:
  bootimgtool info boot.img
  bootimgtool info boot.img --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else if isInteractive(os.Stdin.Fd()) {
				p, err := cliGetInputPath(os.Stdin, os.Stdout)
				if err != nil {
					return err
				}
				path = p
			} else {
				return errors.New("no image given")
			}

			info, err := runInfo(path)
			if err != nil {
				return err
			}
			if infoJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			printImageInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}
	cmd.Flags().BoolVar(&infoJSON, "json", false, "Output in JSON format")
	return cmd
}

type entryInfo struct {
	Type   string `json:"type"`
	Size   uint64 `json:"size"`
	XXHash string `json:"xxhash64"`
}

type imageInfo struct {
	Path    string            `json:"path"`
	Format  string            `json:"format"`
	Header  map[string]string `json:"header"`
	Entries []entryInfo       `json:"entries"`
}

func runInfo(path string) (*imageInfo, error) {
	r, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	log.WithFields(log.Fields{
		"path":   path,
		"format": r.FormatType(),
	}).Debug("detected format")

	var header bootimg.Header
	if err := r.ReadHeader(&header); err != nil {
		return nil, wrapAction(err, "reading header")
	}

	info := &imageInfo{
		Path:   path,
		Format: r.FormatType().String(),
		Header: headerProperties(&header),
	}

	var entry bootimg.Entry
	for {
		err := r.ReadEntry(&entry)
		if errors.Is(err, bootimg.ErrEndOfEntries) {
			break
		} else if err != nil {
			return nil, wrapAction(err, "reading entry")
		}

		digest := xxhash.New()
		n, err := io.Copy(digest, r)
		if err != nil {
			return nil, wrapAction(err, "reading "+entry.Type.String())
		}
		info.Entries = append(info.Entries, entryInfo{
			Type:   entry.Type.String(),
			Size:   uint64(n),
			XXHash: fmt.Sprintf("%016x", digest.Sum64()),
		})
	}

	if err := r.Close(); err != nil {
		return nil, err
	}
	return info, nil
}

func printImageInfo(w io.Writer, info *imageInfo) {
	fmt.Fprintf(w, "\nBoot Image Information:\n")
	fmt.Fprintf(w, "  File:   %s\n", info.Path)
	fmt.Fprintf(w, "  Format: %s\n", info.Format)

	fmt.Fprintf(w, "\nHeader:\n")
	keys := make([]string, 0, len(info.Header))
	for k := range info.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-20s %s\n", k+":", info.Header[k])
	}

	fmt.Fprintf(w, "\nEntries:\n")
	for _, e := range info.Entries {
		fmt.Fprintf(w, "  %-20s %10d bytes  xxh64 %s\n", e.Type+":", e.Size, e.XXHash)
	}
}
