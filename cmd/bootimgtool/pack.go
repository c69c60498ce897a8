package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	bootimg "github.com/chenxiaolong/DualBootPatcher-sub001"
	"github.com/chenxiaolong/DualBootPatcher-sub001/internal/ramdisk"
)

type packOptions struct {
	inputDir string
	output   string
	format   bootimg.Format
	aboot    string
}

func init() {
	rootCmd.AddCommand(newPackCmd())
}

func newPackCmd() *cobra.Command {
	var opts packOptions
	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Build a boot image from an unpacked directory",
		Long: `The pack command reads header.txt and the entry files written by
unpack and builds a new image. Entries without a file are left empty.

Example:
  bootimgtool pack -i boot -o boot-new.img
  bootimgtool pack -i boot -o boot-loki.img --format loki --aboot aboot.img`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPack(opts)
		},
	}
	cmd.Flags().StringVarP(&opts.inputDir, "input", "i", "", "Directory created by unpack")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Path of the image to create")
	addFormatFlag(cmd.Flags(), &opts.format, "Output format (default: format in header.txt)")
	cmd.Flags().StringVar(&opts.aboot, "aboot", "", "aboot image to patch against (loki)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runPack(opts packOptions) error {
	f, err := os.Open(filepath.Join(opts.inputDir, headerFileName))
	if err != nil {
		return wrapAction(err, "opening header")
	}
	props, err := readProperties(f)
	f.Close()
	if err != nil {
		return wrapAction(err, "reading header")
	}

	format := opts.format
	if format == 0 {
		name, ok := props[keyFormat]
		if !ok {
			return fmt.Errorf("no output format given and %s has no %s key", headerFileName, keyFormat)
		}
		format, err = bootimg.ParseFormat(name)
		if err != nil {
			return err
		}
	}

	var header bootimg.Header
	header.SetSupportedFields(bootimg.AllHeaderFields)
	if _, err := applyHeaderProperties(&header, props); err != nil {
		return wrapAction(err, "parsing header")
	}

	comp := ramdisk.CompUnknown
	if v, ok := props[keyRamdiskCompression]; ok {
		comp, err = parseCompression(v)
		if err != nil {
			return err
		}
	}

	log.Infof("Packing %s image", format)
	err = writeImage(opts.output, format, &header, func(t bootimg.EntryType) ([]byte, bool, error) {
		path := filepath.Join(opts.inputDir, t.String())
		if t == bootimg.EntryAboot && opts.aboot != "" {
			path = opts.aboot
		}

		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		} else if err != nil {
			return nil, false, wrapAction(err, "reading "+path)
		}

		if t == bootimg.EntryRamdisk && comp != ramdisk.CompUnknown {
			data, err = ramdisk.CompressRamdisk(data, comp)
			if err != nil {
				return nil, false, err
			}
		}
		return data, true, nil
	})
	if err != nil {
		return err
	}

	fmt.Printf(" - Finished! Output is '%s'.\n", opts.output)
	return nil
}

func parseCompression(name string) (ramdisk.Compression, error) {
	for c := ramdisk.CompGzip; c < ramdisk.CompUnknown; c++ {
		if c.String() == name {
			return c, nil
		}
	}
	return ramdisk.CompUnknown, fmt.Errorf("unknown ramdisk compression %q", name)
}
