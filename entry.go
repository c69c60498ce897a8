package bootimg

import (
	"fmt"
	"strings"
)

// EntryType identifies one section of a boot image.
type EntryType uint32

// Entry types
const (
	EntryKernel EntryType = 1 << iota
	EntryRamdisk
	EntrySecondBoot
	EntryDeviceTree
	EntryAboot
	EntryMtkKernelHeader
	EntryMtkRamdiskHeader
	EntrySonyCmdline
	EntrySonyIpl
	EntrySonyRpm
	EntrySonyAppsbl
)

var entryTypeNames = []struct {
	t    EntryType
	name string
}{
	{EntryKernel, "kernel"},
	{EntryRamdisk, "ramdisk"},
	{EntrySecondBoot, "secondboot"},
	{EntryDeviceTree, "dt"},
	{EntryAboot, "aboot"},
	{EntryMtkKernelHeader, "mtk_kernel_header"},
	{EntryMtkRamdiskHeader, "mtk_ramdisk_header"},
	{EntrySonyCmdline, "sony_cmdline"},
	{EntrySonyIpl, "sony_ipl"},
	{EntrySonyRpm, "sony_rpm"},
	{EntrySonyAppsbl, "sony_appsbl"},
}

func (t EntryType) String() string {
	for _, n := range entryTypeNames {
		if n.t == t {
			return n.name
		}
	}
	return fmt.Sprintf("EntryType(%#x)", uint32(t))
}

// ParseEntryType returns the entry type with the given name.
func ParseEntryType(name string) (EntryType, error) {
	for _, n := range entryTypeNames {
		if strings.EqualFold(n.name, name) {
			return n.t, nil
		}
	}
	return 0, fmt.Errorf("unknown entry type %q", name)
}

// Entry describes one section of a boot image. Readers and writers fill a
// caller-owned Entry, so its contents are only valid until the next call.
type Entry struct {
	Type EntryType

	size    uint64
	hasSize bool
}

// Size returns the entry size, if known.
func (e *Entry) Size() (uint64, bool) {
	return e.size, e.hasSize
}

// SetSize sets the entry size.
func (e *Entry) SetSize(size uint64) {
	e.size = size
	e.hasSize = true
}

// UnsetSize marks the entry size as unknown.
func (e *Entry) UnsetSize() {
	e.size = 0
	e.hasSize = false
}

// Clear resets all fields.
func (e *Entry) Clear() {
	*e = Entry{}
}
