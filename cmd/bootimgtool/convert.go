package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	bootimg "github.com/chenxiaolong/DualBootPatcher-sub001"
	"github.com/chenxiaolong/DualBootPatcher-sub001/internal/ramdisk"
)

type convertOptions struct {
	input   string
	output  string
	format  bootimg.Format
	aboot   string
	patches []string
	revert  bool
}

func init() {
	rootCmd.AddCommand(newConvertCmd())
}

func newConvertCmd() *cobra.Command {
	var opts convertOptions
	cmd := &cobra.Command{
		Use:   "convert <input> <output>",
		Short: "Repack a boot image, optionally in another format",
		Long: `The convert command copies the header and entries of a boot image into
a new image. Equal-length string replacements can be applied to the
uncompressed ramdisk on the way.

Example:
  bootimgtool convert boot.img boot-loki.img --format loki --aboot aboot.img
  bootimgtool convert twrp.img twrp-patched.img --patch '/media=/.twrp'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.input = args[0]
			opts.output = args[1]
			return runConvert(opts)
		},
	}
	addFormatFlag(cmd.Flags(), &opts.format, "Output format (default: input format)")
	cmd.Flags().StringVar(&opts.aboot, "aboot", "", "aboot image to patch against (loki)")
	cmd.Flags().StringArrayVarP(&opts.patches, "patch", "p", nil, "Ramdisk replacement as from=to (repeatable)")
	cmd.Flags().BoolVarP(&opts.revert, "revert", "r", false, "Revert the ramdisk replacements")
	return cmd
}

func runConvert(opts convertOptions) error {
	repls := make([]ramdisk.Replacement, 0, len(opts.patches))
	for _, p := range opts.patches {
		repl, err := ramdisk.ParseReplacement(p)
		if err != nil {
			return err
		}
		repls = append(repls, repl)
	}
	dir := ramdisk.ReplNormal
	if opts.revert {
		dir = ramdisk.ReplReverse
	}

	r, err := openReader(opts.input)
	if err != nil {
		return err
	}
	defer r.Close()

	var header bootimg.Header
	if err := r.ReadHeader(&header); err != nil {
		return wrapAction(err, "reading header")
	}

	format := r.FormatType()
	if opts.format != 0 {
		format = opts.format
	}
	log.Infof("Converting %s image to %s", r.FormatType(), format)

	err = writeImage(opts.output, format, &header, func(t bootimg.EntryType) ([]byte, bool, error) {
		if t == bootimg.EntryAboot && opts.aboot != "" {
			data, err := os.ReadFile(opts.aboot)
			if err != nil {
				return nil, false, wrapAction(err, "reading aboot")
			}
			return data, true, nil
		}

		var entry bootimg.Entry
		err := r.GoToEntry(&entry, t)
		if errors.Is(err, bootimg.ErrEndOfEntries) {
			return nil, false, nil
		} else if err != nil {
			return nil, false, wrapAction(err, "finding "+t.String())
		}
		data, err := readAllEntry(r)
		if err != nil {
			return nil, false, wrapAction(err, "reading "+t.String())
		}

		if t == bootimg.EntryRamdisk && len(repls) > 0 {
			log.Info("Patching ramdisk")
			data, err = recompressRamdisk(data, repls, dir)
			if err != nil {
				return nil, false, err
			}
		}
		return data, true, nil
	})
	if err != nil {
		return err
	}

	if err := r.Close(); err != nil {
		return err
	}
	fmt.Printf(" - Finished! Output is '%s'.\n", opts.output)
	return nil
}
