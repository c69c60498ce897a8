package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	bootimg "github.com/chenxiaolong/DualBootPatcher-sub001"
)

// headerFileName holds the header fields of an unpacked image, one
// key=value per line.
const headerFileName = "header.txt"

// Extra keys stored next to the header fields
const (
	keyFormat             = "format"
	keyRamdiskCompression = "ramdisk_compression"
)

type headerKey struct {
	key   string
	field bootimg.HeaderField
	get   func(h *bootimg.Header) (string, bool)
	set   func(h *bootimg.Header, v string) error
}

func addressKey(key string, field bootimg.HeaderField,
	get func(h *bootimg.Header) (uint32, bool), set func(h *bootimg.Header, v uint32) bool) headerKey {
	return headerKey{
		key:   key,
		field: field,
		get: func(h *bootimg.Header) (string, bool) {
			v, ok := get(h)
			return fmt.Sprintf("0x%08x", v), ok
		},
		set: func(h *bootimg.Header, s string) error {
			v, err := strconv.ParseUint(s, 0, 32)
			if err != nil {
				return err
			}
			set(h, uint32(v))
			return nil
		},
	}
}

var headerKeys = []headerKey{
	{
		key:   "board_name",
		field: bootimg.HeaderFieldBoardName,
		get:   (*bootimg.Header).BoardName,
		set: func(h *bootimg.Header, v string) error {
			h.SetBoardName(v)
			return nil
		},
	},
	{
		key:   "cmdline",
		field: bootimg.HeaderFieldKernelCmdline,
		get:   (*bootimg.Header).KernelCmdline,
		set: func(h *bootimg.Header, v string) error {
			h.SetKernelCmdline(v)
			return nil
		},
	},
	{
		key:   "page_size",
		field: bootimg.HeaderFieldPageSize,
		get: func(h *bootimg.Header) (string, bool) {
			v, ok := h.PageSize()
			return strconv.FormatUint(uint64(v), 10), ok
		},
		set: func(h *bootimg.Header, s string) error {
			v, err := strconv.ParseUint(s, 0, 32)
			if err != nil {
				return err
			}
			h.SetPageSize(uint32(v))
			return nil
		},
	},
	addressKey("kernel_address", bootimg.HeaderFieldKernelAddress,
		(*bootimg.Header).KernelAddress, (*bootimg.Header).SetKernelAddress),
	addressKey("ramdisk_address", bootimg.HeaderFieldRamdiskAddress,
		(*bootimg.Header).RamdiskAddress, (*bootimg.Header).SetRamdiskAddress),
	addressKey("secondboot_address", bootimg.HeaderFieldSecondbootAddress,
		(*bootimg.Header).SecondbootAddress, (*bootimg.Header).SetSecondbootAddress),
	addressKey("kernel_tags_address", bootimg.HeaderFieldKernelTagsAddress,
		(*bootimg.Header).KernelTagsAddress, (*bootimg.Header).SetKernelTagsAddress),
	addressKey("sony_ipl_address", bootimg.HeaderFieldSonyIplAddress,
		(*bootimg.Header).SonyIplAddress, (*bootimg.Header).SetSonyIplAddress),
	addressKey("sony_rpm_address", bootimg.HeaderFieldSonyRpmAddress,
		(*bootimg.Header).SonyRpmAddress, (*bootimg.Header).SetSonyRpmAddress),
	addressKey("sony_appsbl_address", bootimg.HeaderFieldSonyAppsblAddress,
		(*bootimg.Header).SonyAppsblAddress, (*bootimg.Header).SetSonyAppsblAddress),
	addressKey("entrypoint_address", bootimg.HeaderFieldEntrypointAddress,
		(*bootimg.Header).EntrypointAddress, (*bootimg.Header).SetEntrypointAddress),
	{
		key:   "id",
		field: bootimg.HeaderFieldID,
		get: func(h *bootimg.Header) (string, bool) {
			id, ok := h.ID()
			return hex.EncodeToString(id[:]), ok
		},
		set: func(h *bootimg.Header, s string) error {
			var id [32]byte
			b, err := hex.DecodeString(s)
			if err != nil {
				return err
			}
			if len(b) != len(id) {
				return fmt.Errorf("expected %d bytes, got %d", len(id), len(b))
			}
			copy(id[:], b)
			h.SetID(id)
			return nil
		},
	},
}

// headerProperties returns the set header fields as key/value pairs.
func headerProperties(h *bootimg.Header) map[string]string {
	props := make(map[string]string)
	for _, k := range headerKeys {
		if v, ok := k.get(h); ok {
			props[k.key] = v
		}
	}
	return props
}

// applyHeaderProperties sets every field in props that h supports and
// returns the keys that were ignored.
func applyHeaderProperties(h *bootimg.Header, props map[string]string) ([]string, error) {
	var ignored []string
	for _, k := range headerKeys {
		v, ok := props[k.key]
		if !ok {
			continue
		}
		if h.SupportedFields()&k.field == 0 {
			ignored = append(ignored, k.key)
			continue
		}
		if err := k.set(h, v); err != nil {
			return nil, fmt.Errorf("%s: %w", k.key, err)
		}
	}
	return ignored, nil
}

// writeProperties writes props sorted by key.
func writeProperties(w io.Writer, props map[string]string) error {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	bw := bufio.NewWriter(w)
	for _, k := range keys {
		if strings.ContainsAny(props[k], "\n\r") {
			return fmt.Errorf("%s: value contains a newline", k)
		}
		fmt.Fprintf(bw, "%s=%s\n", k, props[k])
	}
	return bw.Flush()
}

// readProperties parses key=value lines. Blank lines and lines starting
// with '#' are skipped.
func readProperties(r io.Reader) (map[string]string, error) {
	props := make(map[string]string)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}
		k, v, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: missing '='", line)
		}
		props[k] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return props, nil
}
