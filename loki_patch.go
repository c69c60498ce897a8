package bootimg

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/chenxiaolong/DualBootPatcher-sub001/internal/buf"
)

// findAbootCheckSigs scans aboot for the signature check function and
// returns its offset in aboot and its load address.
func findAbootCheckSigs(aboot []byte) (int, uint32, error) {
	if len(aboot) < lokiMinAbootSize {
		return 0, 0, fmt.Errorf("%w: %d bytes", ErrAbootImageTooSmall, len(aboot))
	}

	// The image header records where the code after it is loaded
	base := binary.LittleEndian.Uint32(aboot[12:]) - 0x28
	limit := len(aboot) - lokiMinAbootSize

	for _, pass := range lokiPatternPasses {
		for i := 0; i < limit; i++ {
			for _, pattern := range pass {
				if bytes.Equal(aboot[i:i+lokiPatternSize], pattern) {
					return i, uint32(i) + base, nil
				}
			}
		}
	}
	return 0, 0, ErrAbootFunctionNotFound
}

// PatchLoki rewrites the finalized Android image in f so that a locked
// bootloader matching aboot boots it. The ramdisk is folded into the kernel,
// the header's ramdisk address is pointed at the bootloader's signature check
// and the check itself is overwritten with shellcode placed after the
// ramdisk. The device tree moves back to make room for it.
func PatchLoki(f File, aboot []byte) error {
	funcOffset, checkSigs, err := findAbootCheckSigs(aboot)
	if err != nil {
		return err
	}
	tgt, ok := findLokiTarget(checkSigs)
	if !ok {
		return fmt.Errorf("%w: signature check at %#08x", ErrUnsupportedAbootImage, checkSigs)
	}

	hdr, _, err := findAndroidHeader(f, 0)
	if err != nil {
		return err
	}
	page := hdr.PageSize
	if !isValidPageSize(page) {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, page)
	}

	var lhdr lokiHeader
	copy(lhdr.Magic[:], LokiMagic)
	copy(lhdr.Build[:LokiBuildSize-1], tgt.Build)
	lhdr.OrigKernelSize = hdr.KernelSize
	lhdr.OrigRamdiskSize = hdr.RamdiskSize

	alignedKernel, ok := buf.AlignUp32(hdr.KernelSize, page)
	if !ok {
		return fmt.Errorf("%w: kernel of %d bytes", ErrEntrySizeTooLarge, hdr.KernelSize)
	}
	lokiRamdiskAddr, ok := buf.AddUint32(hdr.KernelAddr, alignedKernel)
	if !ok {
		return fmt.Errorf("%w: %#08x", ErrInvalidKernelAddress, hdr.KernelAddr)
	}
	lhdr.RamdiskAddr = lokiRamdiskAddr

	shellcode := patchedShellcode(tgt.Hdr, hdr.RamdiskAddr)

	// The bootloader now loads kernel and ramdisk as one blob, then the fake
	// area in place of the ramdisk at the check function's address.
	kernelSize, ok := buf.AddUint32(alignedKernel, hdr.RamdiskSize)
	if !ok {
		return fmt.Errorf("%w: kernel and ramdisk", ErrEntrySizeTooLarge)
	}
	offset := tgt.CheckSigs & 0xf

	var fake uint32
	if tgt.LG {
		fake = page
		hdr.RamdiskSize = page
	} else {
		fake = lokiSmallFakeSize
		hdr.RamdiskSize = 0
	}
	hdr.KernelSize = kernelSize
	hdr.RamdiskAddr = tgt.CheckSigs - offset

	fakeOffset := uint64(page) + uint64(alignedKernel) + pageAlign(lhdr.OrigRamdiskSize, page)

	start := funcOffset - int(offset)
	if start < 0 || start+int(fake) > len(aboot) {
		return fmt.Errorf("%w: %d+%d in %d bytes", ErrAbootFunctionOutOfRange, start, fake, len(aboot))
	}
	fakeBuf := append([]byte(nil), aboot[start:start+int(fake)]...)
	copy(fakeBuf[offset:], shellcode)

	dt := make([]byte, hdr.DtSize)
	if len(dt) > 0 {
		n, err := readAt(f, fakeOffset, dt)
		if err != nil {
			return err
		}
		if n != len(dt) {
			return fmt.Errorf("device tree at %d: %w", fakeOffset, ErrAndroidHeaderOutOfBounds)
		}
	}

	if err := writeAt(f, 0, hdr.marshal()); err != nil {
		return err
	}
	if err := writeAt(f, LokiMagicOffset, lhdr.marshal()); err != nil {
		return err
	}
	if err := writeAt(f, fakeOffset, fakeBuf); err != nil {
		return err
	}
	if err := writeAt(f, fakeOffset+uint64(fake), dt); err != nil {
		return err
	}

	end := fakeOffset + uint64(fake) + uint64(len(dt))
	return f.Truncate(int64(end))
}
