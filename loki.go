package bootimg

import (
	"bytes"
	"encoding/binary"
)

// Loki image constants
const (
	LokiMagic      = "LOKI"
	LokiMagicSize  = 4
	LokiBuildSize  = 128
	LokiHeaderSize = 148

	// LokiMagicOffset is where the Loki header lives inside the header page.
	LokiMagicOffset = 0x400
	// lokiMaxAndroidOffset bounds the Android magic search in Loki images.
	lokiMaxAndroidOffset = 32

	lokiShellcodeSize = 65
	// The search prefix stops before the two patched placeholders and the
	// trailing NUL.
	lokiShellcodePrefixSize = lokiShellcodeSize - 9
	// lokiRamdiskAddrOffset is where the real ramdisk address is patched
	// into the shellcode.
	lokiRamdiskAddrOffset = lokiShellcodeSize - 5

	lokiMinAbootSize = 0x1000
	lokiMaxAbootSize = 4 << 20

	lokiPatternSize = 8

	// Offset of the self-reported image size in an ARM zImage.
	zImageSizeOffset = 0x2c

	// Default distance between kernel and ramdisk on jflte.
	lokiDefaultRamdiskOffset = 0x01ff8000

	lokiSmallFakeSize = 0x200
)

// lokiHeader directly correlates to the on-disk header at LokiMagicOffset.
type lokiHeader struct {
	Magic    [LokiMagicSize]byte
	Recovery uint32
	Build    [LokiBuildSize]byte

	OrigKernelSize  uint32
	OrigRamdiskSize uint32
	RamdiskAddr     uint32
}

func (h *lokiHeader) encodeTo(b []byte) {
	le := binary.LittleEndian
	copy(b[0:4], h.Magic[:])
	le.PutUint32(b[4:], h.Recovery)
	copy(b[8:136], h.Build[:])
	le.PutUint32(b[136:], h.OrigKernelSize)
	le.PutUint32(b[140:], h.OrigRamdiskSize)
	le.PutUint32(b[144:], h.RamdiskAddr)
}

func (h *lokiHeader) decodeFrom(b []byte) {
	le := binary.LittleEndian
	copy(h.Magic[:], b[0:4])
	h.Recovery = le.Uint32(b[4:])
	copy(h.Build[:], b[8:136])
	h.OrigKernelSize = le.Uint32(b[136:])
	h.OrigRamdiskSize = le.Uint32(b[140:])
	h.RamdiskAddr = le.Uint32(b[144:])
}

func (h *lokiHeader) marshal() []byte {
	b := make([]byte, LokiHeaderSize)
	h.encodeTo(b)
	return b
}

// isNewStyle reports whether the header records the original image layout.
// Images patched by early Loki releases leave these fields zeroed.
func (h *lokiHeader) isNewStyle() bool {
	return h.OrigKernelSize != 0 && h.OrigRamdiskSize != 0 && h.RamdiskAddr != 0
}

// lokiFakeSize returns the size of the area that holds the copied aboot
// function. LG devices load their ramdisk outside the Samsung address range
// and need a full page.
func lokiFakeSize(ramdiskAddr, pageSize uint32) uint32 {
	if ramdiskAddr > 0x88f00000 || ramdiskAddr < 0xfa00000 {
		return pageSize
	}
	return lokiSmallFakeSize
}

// Instruction sequences at the start of the signature check function. The
// first four are tried together, then the last two one at a time since they
// also match unrelated code.
var (
	lokiPattern1 = []byte{0xf0, 0xb5, 0x8f, 0xb0, 0x06, 0x46, 0xf0, 0xf7}
	lokiPattern2 = []byte{0xf0, 0xb5, 0x8f, 0xb0, 0x07, 0x46, 0xf0, 0xf7}
	lokiPattern3 = []byte{0x2d, 0xe9, 0xf0, 0x41, 0x86, 0xb0, 0xf1, 0xf7}
	lokiPattern4 = []byte{0x2d, 0xe9, 0xf0, 0x4f, 0xad, 0xf5, 0xc6, 0x6d}
	lokiPattern5 = []byte{0x2d, 0xe9, 0xf0, 0x4f, 0xad, 0xf5, 0x21, 0x7d}
	lokiPattern6 = []byte{0x2d, 0xe9, 0xf0, 0x4f, 0xf3, 0xb0, 0x05, 0x46}

	lokiPatternPasses = [][][]byte{
		{lokiPattern1, lokiPattern2, lokiPattern3, lokiPattern4},
		{lokiPattern5},
		{lokiPattern6},
	}
)

// lokiShellcode replaces the signature check. 0xffffffff is patched with the
// address of the saved header and 0xeeeeeeee with the real ramdisk address.
var lokiShellcode = [lokiShellcodeSize]byte{
	0xfe, 0xb5, 0x0d, 0x4d, 0xd5, 0xf8, 0x88, 0x04,
	0xab, 0x68, 0x98, 0x42, 0x12, 0xd0, 0xd5, 0xf8,
	0x90, 0x64, 0x0a, 0x4c, 0xd5, 0xf8, 0x8c, 0x74,
	0x07, 0xf5, 0x80, 0x57, 0x0f, 0xce, 0x0f, 0xc4,
	0x10, 0x3f, 0xfb, 0xdc, 0xd5, 0xf8, 0x88, 0x04,
	0x04, 0x49, 0xd5, 0xf8, 0x8c, 0x64, 0x81, 0x42,
	0x02, 0xd0, 0x03, 0x4b, 0x98, 0x47, 0xfe, 0xbd,
	0xff, 0xff, 0xff, 0xff,
	0xee, 0xee, 0xee, 0xee,
	0x00,
}

// patchedShellcode returns the shellcode with both placeholders filled in.
func patchedShellcode(hdrAddr, ramdiskAddr uint32) []byte {
	code := append([]byte(nil), lokiShellcode[:]...)
	var v [4]byte
	for i := 0; i+4 <= len(code); i++ {
		switch {
		case bytes.Equal(code[i:i+4], []byte{0xff, 0xff, 0xff, 0xff}):
			binary.LittleEndian.PutUint32(v[:], hdrAddr)
			copy(code[i:], v[:])
		case bytes.Equal(code[i:i+4], []byte{0xee, 0xee, 0xee, 0xee}):
			binary.LittleEndian.PutUint32(v[:], ramdiskAddr)
			copy(code[i:], v[:])
		}
	}
	return code
}

// lokiTarget describes one supported bootloader build.
type lokiTarget struct {
	Vendor    string
	Device    string
	Build     string
	CheckSigs uint32
	Hdr       uint32
	LG        bool
}

var lokiTargets = [...]lokiTarget{
	{"AT&T", "Samsung Galaxy S4", "JDQ39.I337UCUAMDB or JDQ39.I337UCUAMDL", 0x88e0ff98, 0x88f3bafc, false},
	{"Verizon", "Samsung Galaxy S4", "JDQ39.I545VRUAMDK", 0x88e0fe98, 0x88f372fc, false},
	{"DoCoMo", "Samsung Galaxy S4", "JDQ39.SC04EOMUAMDI", 0x88e0fcd8, 0x88f0b2fc, false},
	{"Verizon", "Samsung Galaxy Stellar", "IMM76D.I200VRALH2", 0x88e0f5c0, 0x88ed32e0, false},
	{"Verizon", "Samsung Galaxy Stellar", "JZO54K.I200VRBMA1", 0x88e101ac, 0x88ed72e0, false},
	{"T-Mobile", "LG Optimus F3Q", "D52010c", 0x88f1079c, 0x88f64508, true},
	{"DoCoMo", "LG Optimus G", "L01E20b", 0x88f10e48, 0x88f54418, true},
	{"DoCoMo", "LG Optimus it L05E", "L05E10d", 0x88f1157c, 0x88f31e10, true},
	{"DoCoMo", "LG Optimus G Pro", "L04E10f", 0x88f1102c, 0x88f54418, true},
	{"AT&T or HK", "LG Optimus G Pro", "E98010g or E98810b", 0x88f11084, 0x88f54418, true},
	{"KT, LGU, or SKT", "LG Optimus G Pro", "F240K10o, F240L10v, or F240S10w", 0x88f110b8, 0x88f54418, true},
	{"KT, LGU, or SKT", "LG Optimus LTE 2", "F160K20g, F160L20f, F160LV20d, or F160S20f", 0x88f10864, 0x88f802b8, true},
	{"MetroPCS", "LG Spirit", "MS87010a_05", 0x88f0e634, 0x88f68194, true},
	{"MetroPCS", "LG Motion", "MS77010f_01", 0x88f1015c, 0x88f58194, true},
	{"Verizon", "LG Lucid 2", "VS87010B_12", 0x88f10adc, 0x88f702bc, true},
	{"Verizon", "LG Spectrum 2", "VS93021B_05", 0x88f10c10, 0x88f84514, true},
	{"Boost Mobile", "LG Optimus F7", "LG870ZV4_06", 0x88f11714, 0x88f842ac, true},
	{"US Cellular", "LG Optimus F7", "US78011a", 0x88f112c8, 0x88f84518, true},
	{"Sprint", "LG Optimus F7", "LG870ZV5_02", 0x88f11710, 0x88f842a8, true},
	{"Virgin Mobile", "LG Optimus F3", "LS720ZV5", 0x88f108f0, 0x88f854f4, true},
	{"T-Mobile and MetroPCS", "LG Optimus F3", "LS720ZV5", 0x88f10264, 0x88f64508, true},
	{"AT&T", "LG G2", "D80010d", 0x0f8132ac, 0x0f906440, true},
	{"Verizon", "LG G2", "VS98010b", 0x0f8131f0, 0x0f906440, true},
	{"AT&T", "LG G2", "D80010o", 0x0f813428, 0x0f904400, true},
	{"Verizon", "LG G2", "VS98012b", 0x0f813210, 0x0f906440, true},
	{"T-Mobile or Canada", "LG G2", "D80110c or D803", 0x0f813294, 0x0f906440, true},
	{"International", "LG G2", "D802b", 0x0f813a70, 0x0f9041c0, true},
	{"Sprint", "LG G2", "LS980ZV7", 0x0f813460, 0x0f9041c0, true},
	{"KT or LGU", "LG G2", "F320K, F320L", 0x0f81346c, 0x0f8de440, true},
	{"SKT", "LG G2", "F320S", 0x0f8132e4, 0x0f8ee440, true},
	{"SKT", "LG G2", "F320S11c", 0x0f813470, 0x0f8de440, true},
	{"DoCoMo", "LG G2", "L-01F", 0x0f813538, 0x0f8d41c0, true},
	{"KT, LGU, or SKT", "LG G2", "F320K, F320L, F320S", 0x0f813468, 0x0f8de440, true},
	{"KT, LGU, or SKT", "LG G Flex", "F340K/L/S", 0x0f8124a4, 0x0f8b6440, true},
	{"KDDI", "LG G Flex", "LGL2310d", 0x0f81261c, 0x0f8b41c0, true},
	{"International", "LG Optimus F5", "P87510e", 0x88f10a9c, 0x88f702b8, true},
	{"SKT", "LG Optimus LTE 3", "F260S10l", 0x88f11398, 0x88f8451c, true},
	{"International", "LG G Pad 8.3", "V50010a", 0x88f10814, 0x88f801b8, true},
	{"International", "LG G Pad 8.3", "V50010c or V50010e", 0x88f108bc, 0x88f801b8, true},
	{"Verizon", "LG G Pad 8.3", "VK81010c", 0x88f11080, 0x88fd81b8, true},
	{"International", "LG Optimus L9 II", "D60510a", 0x88f10d98, 0x88f84aa4, true},
	{"MetroPCS", "LG Optimus F6", "MS50010e", 0x88f10260, 0x88f70508, true},
	{"Open EU", "LG Optimus F6", "D50510a", 0x88f10284, 0x88f70aa4, true},
	{"KDDI", "LG Isai", "LGL22", 0x0f813458, 0x0f8d41c0, true},
	{"KDDI", "LG", "LGL21", 0x88f10218, 0x88f50198, true},
	{"KT", "LG Optimus GK", "F220K", 0x88f11034, 0x88f54418, true},
	{"International", "LG Vu 3", "F300L", 0x0f813170, 0x0f8d2440, true},
	{"Sprint", "LG Viper", "LS840ZVK", 0x4010fe18, 0x40194198, true},
	{"International", "LG Gx", "F310L", 0x88f1080c, 0x88f6c194, true},
	{"International", "LG Optimus L7 II", "P71310d", 0x88f10a58, 0x88f84aa4, true},
}

func findLokiTarget(checkSigs uint32) (*lokiTarget, bool) {
	for i := range lokiTargets {
		if lokiTargets[i].CheckSigs == checkSigs {
			return &lokiTargets[i], true
		}
	}
	return nil, false
}
