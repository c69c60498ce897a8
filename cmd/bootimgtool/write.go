package main

import (
	"errors"
	"strings"

	"github.com/apex/log"

	bootimg "github.com/chenxiaolong/DualBootPatcher-sub001"
	"github.com/chenxiaolong/DualBootPatcher-sub001/internal/ramdisk"
)

// entrySource returns the data for an entry type. ok is false when the
// source has no such entry; the slot is then left empty.
type entrySource func(t bootimg.EntryType) (data []byte, ok bool, err error)

// headerFieldNames returns the header.txt keys of fields.
func headerFieldNames(fields bootimg.HeaderField) string {
	var names []string
	for _, k := range headerKeys {
		if fields&k.field != 0 {
			names = append(names, k.key)
		}
	}
	return strings.Join(names, ", ")
}

// writeImage builds an image at path in format from src and the entries
// returned by entries.
func writeImage(path string, format bootimg.Format, src *bootimg.Header, entries entrySource) error {
	w := bootimg.NewWriter()
	if err := w.SetFormat(format); err != nil {
		return err
	}
	if err := w.OpenFilename(path); err != nil {
		return wrapAction(err, "creating output file")
	}
	defer w.Close()

	var header bootimg.Header
	if err := w.GetHeader(&header); err != nil {
		return wrapAction(err, "preparing header")
	}
	// The ID is always recomputed
	if dropped := header.Merge(src) &^ bootimg.HeaderFieldID; dropped != 0 {
		log.WithField("fields", headerFieldNames(dropped)).
			Warnf("%s images cannot store some header fields", format)
	}
	if err := w.WriteHeader(&header); err != nil {
		return wrapAction(err, "writing header")
	}

	var entry bootimg.Entry
	for {
		err := w.GetEntry(&entry)
		if errors.Is(err, bootimg.ErrEndOfEntries) {
			break
		} else if err != nil {
			return wrapAction(err, "preparing entry")
		}

		data, ok, err := entries(entry.Type)
		if err != nil {
			return err
		}
		if !ok {
			log.WithField("entry", entry.Type).Debug("leaving entry empty")
			continue
		}

		entry.SetSize(uint64(len(data)))
		if err := w.WriteEntry(&entry); err != nil {
			return wrapAction(err, "writing "+entry.Type.String())
		}
		if _, err := w.Write(data); err != nil {
			return wrapAction(err, "writing "+entry.Type.String())
		}
		if err := w.FinishEntry(); err != nil {
			return wrapAction(err, "finishing "+entry.Type.String())
		}
		log.WithFields(log.Fields{
			"entry": entry.Type,
			"size":  len(data),
		}).Debug("wrote entry")
	}

	if err := w.Close(); err != nil {
		return wrapAction(err, "finalizing image")
	}
	return nil
}

// recompressRamdisk applies repls to a compressed ramdisk, keeping its
// compression format.
func recompressRamdisk(data []byte, repls []ramdisk.Replacement, dir ramdisk.Direction) ([]byte, error) {
	comp := ramdisk.DetectCompressor(data)
	log.WithField("compression", comp).Debug("extracting ramdisk")
	extracted, err := ramdisk.ExtractRamdisk(data, comp)
	if err != nil {
		return nil, err
	}
	patched, err := ramdisk.Patch(extracted, repls, dir)
	if err != nil {
		return nil, wrapAction(err, "patching ramdisk")
	}
	return ramdisk.CompressRamdisk(patched, comp)
}
