package bootimg

// HeaderField is a bit mask naming the fields of a Header.
type HeaderField uint32

// Header fields
const (
	HeaderFieldBoardName HeaderField = 1 << iota
	HeaderFieldKernelCmdline
	HeaderFieldPageSize
	HeaderFieldKernelAddress
	HeaderFieldRamdiskAddress
	HeaderFieldSecondbootAddress
	HeaderFieldKernelTagsAddress
	HeaderFieldSonyIplAddress
	HeaderFieldSonyRpmAddress
	HeaderFieldSonyAppsblAddress
	HeaderFieldEntrypointAddress
	HeaderFieldID
)

// AllHeaderFields is the union of every header field.
const AllHeaderFields = HeaderFieldBoardName | HeaderFieldKernelCmdline |
	HeaderFieldPageSize | HeaderFieldKernelAddress | HeaderFieldRamdiskAddress |
	HeaderFieldSecondbootAddress | HeaderFieldKernelTagsAddress |
	HeaderFieldSonyIplAddress | HeaderFieldSonyRpmAddress |
	HeaderFieldSonyAppsblAddress | HeaderFieldEntrypointAddress | HeaderFieldID

// Header holds the image-wide metadata of a boot image. Every field is
// optional. SupportedFields lists the fields meaningful for the format the
// header was obtained from; setters for other fields return false and store
// nothing.
type Header struct {
	supported HeaderField
	set       HeaderField

	boardName     string
	kernelCmdline string
	pageSize      uint32
	addresses     [addressSlots]uint32
	id            [32]byte
}

const (
	slotKernel = iota
	slotRamdisk
	slotSecondboot
	slotKernelTags
	slotSonyIpl
	slotSonyRpm
	slotSonyAppsbl
	slotEntrypoint
	addressSlots
)

// Clear unsets every field and clears the supported mask.
func (h *Header) Clear() {
	*h = Header{}
}

// SupportedFields returns the fields the active format understands.
func (h *Header) SupportedFields() HeaderField {
	return h.supported
}

// SetSupportedFields replaces the supported field mask. Fields that are no
// longer supported are unset.
func (h *Header) SetSupportedFields(fields HeaderField) {
	h.supported = fields
	for f := HeaderField(1); f != 0 && f <= HeaderFieldID; f <<= 1 {
		if fields&f == 0 && h.set&f != 0 {
			h.Unset(f)
		}
	}
}

// IsSet reports whether all the given fields hold a value.
func (h *Header) IsSet(fields HeaderField) bool {
	return h.set&fields == fields
}

// Unset clears the given fields.
func (h *Header) Unset(fields HeaderField) {
	h.set &^= fields
	if fields&HeaderFieldBoardName != 0 {
		h.boardName = ""
	}
	if fields&HeaderFieldKernelCmdline != 0 {
		h.kernelCmdline = ""
	}
	if fields&HeaderFieldPageSize != 0 {
		h.pageSize = 0
	}
	if fields&HeaderFieldID != 0 {
		h.id = [32]byte{}
	}
	for i := 0; i < addressSlots; i++ {
		if fields&addressFields[i] != 0 {
			h.addresses[i] = 0
		}
	}
}

func (h *Header) enable(field HeaderField) bool {
	if h.supported&field == 0 {
		return false
	}
	h.set |= field
	return true
}

var addressFields = [addressSlots]HeaderField{
	slotKernel:     HeaderFieldKernelAddress,
	slotRamdisk:    HeaderFieldRamdiskAddress,
	slotSecondboot: HeaderFieldSecondbootAddress,
	slotKernelTags: HeaderFieldKernelTagsAddress,
	slotSonyIpl:    HeaderFieldSonyIplAddress,
	slotSonyRpm:    HeaderFieldSonyRpmAddress,
	slotSonyAppsbl: HeaderFieldSonyAppsblAddress,
	slotEntrypoint: HeaderFieldEntrypointAddress,
}

func (h *Header) address(slot int) (uint32, bool) {
	return h.addresses[slot], h.set&addressFields[slot] != 0
}

func (h *Header) setAddress(slot int, v uint32) bool {
	if !h.enable(addressFields[slot]) {
		return false
	}
	h.addresses[slot] = v
	return true
}

// BoardName returns the board name.
func (h *Header) BoardName() (string, bool) {
	return h.boardName, h.set&HeaderFieldBoardName != 0
}

// SetBoardName sets the board name.
func (h *Header) SetBoardName(name string) bool {
	if !h.enable(HeaderFieldBoardName) {
		return false
	}
	h.boardName = name
	return true
}

// KernelCmdline returns the kernel command line.
func (h *Header) KernelCmdline() (string, bool) {
	return h.kernelCmdline, h.set&HeaderFieldKernelCmdline != 0
}

// SetKernelCmdline sets the kernel command line.
func (h *Header) SetKernelCmdline(cmdline string) bool {
	if !h.enable(HeaderFieldKernelCmdline) {
		return false
	}
	h.kernelCmdline = cmdline
	return true
}

// PageSize returns the page size.
func (h *Header) PageSize() (uint32, bool) {
	return h.pageSize, h.set&HeaderFieldPageSize != 0
}

// SetPageSize sets the page size.
func (h *Header) SetPageSize(size uint32) bool {
	if !h.enable(HeaderFieldPageSize) {
		return false
	}
	h.pageSize = size
	return true
}

// ID returns the raw 32-byte image ID, as found on disk.
func (h *Header) ID() ([32]byte, bool) {
	return h.id, h.set&HeaderFieldID != 0
}

// SetID sets the raw image ID.
func (h *Header) SetID(id [32]byte) bool {
	if !h.enable(HeaderFieldID) {
		return false
	}
	h.id = id
	return true
}

// KernelAddress returns the kernel load address.
func (h *Header) KernelAddress() (uint32, bool) { return h.address(slotKernel) }

// SetKernelAddress sets the kernel load address.
func (h *Header) SetKernelAddress(addr uint32) bool { return h.setAddress(slotKernel, addr) }

// RamdiskAddress returns the ramdisk load address.
func (h *Header) RamdiskAddress() (uint32, bool) { return h.address(slotRamdisk) }

// SetRamdiskAddress sets the ramdisk load address.
func (h *Header) SetRamdiskAddress(addr uint32) bool { return h.setAddress(slotRamdisk, addr) }

// SecondbootAddress returns the second stage bootloader load address.
func (h *Header) SecondbootAddress() (uint32, bool) { return h.address(slotSecondboot) }

// SetSecondbootAddress sets the second stage bootloader load address.
func (h *Header) SetSecondbootAddress(addr uint32) bool { return h.setAddress(slotSecondboot, addr) }

// KernelTagsAddress returns the kernel tags address.
func (h *Header) KernelTagsAddress() (uint32, bool) { return h.address(slotKernelTags) }

// SetKernelTagsAddress sets the kernel tags address.
func (h *Header) SetKernelTagsAddress(addr uint32) bool { return h.setAddress(slotKernelTags, addr) }

// SonyIplAddress returns the Sony IPL load address.
func (h *Header) SonyIplAddress() (uint32, bool) { return h.address(slotSonyIpl) }

// SetSonyIplAddress sets the Sony IPL load address.
func (h *Header) SetSonyIplAddress(addr uint32) bool { return h.setAddress(slotSonyIpl, addr) }

// SonyRpmAddress returns the Sony RPM load address.
func (h *Header) SonyRpmAddress() (uint32, bool) { return h.address(slotSonyRpm) }

// SetSonyRpmAddress sets the Sony RPM load address.
func (h *Header) SetSonyRpmAddress(addr uint32) bool { return h.setAddress(slotSonyRpm, addr) }

// SonyAppsblAddress returns the Sony APPSBL load address.
func (h *Header) SonyAppsblAddress() (uint32, bool) { return h.address(slotSonyAppsbl) }

// SetSonyAppsblAddress sets the Sony APPSBL load address.
func (h *Header) SetSonyAppsblAddress(addr uint32) bool { return h.setAddress(slotSonyAppsbl, addr) }

// EntrypointAddress returns the entry point address.
func (h *Header) EntrypointAddress() (uint32, bool) { return h.address(slotEntrypoint) }

// SetEntrypointAddress sets the entry point address.
func (h *Header) SetEntrypointAddress(addr uint32) bool { return h.setAddress(slotEntrypoint, addr) }

// Merge copies every field set in src that h supports. It returns the fields
// of src that were dropped because h does not support them.
func (h *Header) Merge(src *Header) HeaderField {
	dropped := src.set &^ h.supported
	copyable := src.set & h.supported

	if copyable&HeaderFieldBoardName != 0 {
		h.SetBoardName(src.boardName)
	}
	if copyable&HeaderFieldKernelCmdline != 0 {
		h.SetKernelCmdline(src.kernelCmdline)
	}
	if copyable&HeaderFieldPageSize != 0 {
		h.SetPageSize(src.pageSize)
	}
	if copyable&HeaderFieldID != 0 {
		h.SetID(src.id)
	}
	for i := 0; i < addressSlots; i++ {
		if copyable&addressFields[i] != 0 {
			h.setAddress(i, src.addresses[i])
		}
	}

	return dropped
}
