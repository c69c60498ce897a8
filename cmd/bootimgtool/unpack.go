package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	bootimg "github.com/chenxiaolong/DualBootPatcher-sub001"
	"github.com/chenxiaolong/DualBootPatcher-sub001/internal/ramdisk"
)

type unpackOptions struct {
	input             string
	outputDir         string
	decompressRamdisk bool
}

func init() {
	rootCmd.AddCommand(newUnpackCmd())
}

func newUnpackCmd() *cobra.Command {
	var opts unpackOptions
	cmd := &cobra.Command{
		Use:   "unpack <image>",
		Short: "Extract the header and entries of a boot image",
		Long: `The unpack command writes the header fields of a boot image to
header.txt and every entry to a file named after its type in the output
directory. The directory can be turned back into an image with pack.

Example:
  bootimgtool unpack boot.img -o boot
  bootimgtool unpack boot.img -o boot --decompress-ramdisk`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.input = args[0]
			return runUnpack(opts)
		},
	}
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "Output directory (default: image name without extension)")
	cmd.Flags().BoolVar(&opts.decompressRamdisk, "decompress-ramdisk", false, "Store the ramdisk uncompressed")
	return cmd
}

func runUnpack(opts unpackOptions) error {
	if opts.outputDir == "" {
		base := filepath.Base(opts.input)
		opts.outputDir = base[:len(base)-len(filepath.Ext(base))]
	}

	r, err := openReader(opts.input)
	if err != nil {
		return err
	}
	defer r.Close()

	log.Infof("Unpacking %s image", r.FormatType())

	var header bootimg.Header
	if err := r.ReadHeader(&header); err != nil {
		return wrapAction(err, "reading header")
	}

	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		return wrapAction(err, "creating output directory")
	}

	props := headerProperties(&header)
	props[keyFormat] = r.FormatType().String()

	var entry bootimg.Entry
	for {
		err := r.ReadEntry(&entry)
		if errors.Is(err, bootimg.ErrEndOfEntries) {
			break
		} else if err != nil {
			return wrapAction(err, "reading entry")
		}

		data, err := readAllEntry(r)
		if err != nil {
			return wrapAction(err, "reading "+entry.Type.String())
		}

		if entry.Type == bootimg.EntryRamdisk && opts.decompressRamdisk {
			comp := ramdisk.DetectCompressor(data)
			extracted, err := ramdisk.ExtractRamdisk(data, comp)
			if err != nil {
				return err
			}
			props[keyRamdiskCompression] = comp.String()
			data = extracted
		}

		path := filepath.Join(opts.outputDir, entry.Type.String())
		log.WithFields(log.Fields{
			"entry": entry.Type,
			"size":  len(data),
		}).Debug("writing entry")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return wrapAction(err, "writing "+path)
		}
	}

	var buf bytes.Buffer
	if err := writeProperties(&buf, props); err != nil {
		return wrapAction(err, "formatting header")
	}
	path := filepath.Join(opts.outputDir, headerFileName)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return wrapAction(err, "writing "+path)
	}

	if err := r.Close(); err != nil {
		return err
	}
	fmt.Printf(" - Finished! Output is in '%s'.\n", opts.outputDir)
	return nil
}
