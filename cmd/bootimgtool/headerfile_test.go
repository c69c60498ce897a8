package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	bootimg "github.com/chenxiaolong/DualBootPatcher-sub001"
)

func TestHeaderPropertiesRoundTrip(t *testing.T) {
	var h bootimg.Header
	h.SetSupportedFields(bootimg.AllHeaderFields)
	h.SetBoardName("hammerhead")
	h.SetKernelCmdline("console=ttyHSL0,115200,n8 androidboot.hardware=hammerhead")
	h.SetPageSize(2048)
	h.SetKernelAddress(0x00008000)
	h.SetSonyIplAddress(0x88000000)
	h.SetID([32]byte{0xde, 0xad, 0xbe, 0xef})

	props := headerProperties(&h)
	require.Equal(t, "0x00008000", props["kernel_address"])
	require.Equal(t, "2048", props["page_size"])
	require.NotContains(t, props, "ramdisk_address")

	var buf bytes.Buffer
	require.NoError(t, writeProperties(&buf, props))
	require.True(t, strings.HasPrefix(buf.String(), "board_name=hammerhead\n"))

	parsed, err := readProperties(&buf)
	require.NoError(t, err)
	require.Equal(t, props, parsed)

	var out bootimg.Header
	out.SetSupportedFields(bootimg.AllHeaderFields)
	ignored, err := applyHeaderProperties(&out, parsed)
	require.NoError(t, err)
	require.Empty(t, ignored)
	require.Equal(t, h, out)
}

func TestApplyHeaderPropertiesUnsupported(t *testing.T) {
	var h bootimg.Header
	h.SetSupportedFields(bootimg.HeaderFieldPageSize)

	ignored, err := applyHeaderProperties(&h, map[string]string{
		"page_size":        "4096",
		"sony_rpm_address": "0x1000",
		"format":           "android",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"sony_rpm_address"}, ignored)
	size, ok := h.PageSize()
	require.True(t, ok)
	require.EqualValues(t, 4096, size)

	_, err = applyHeaderProperties(&h, map[string]string{"page_size": "big"})
	require.Error(t, err)
}

func TestReadProperties(t *testing.T) {
	props, err := readProperties(strings.NewReader("# comment\n\ncmdline=a=b c\nformat=mtk\n"))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"cmdline": "a=b c", "format": "mtk"}, props)

	_, err = readProperties(strings.NewReader("page_size\n"))
	require.Error(t, err)

	require.Error(t, writeProperties(&bytes.Buffer{}, map[string]string{"cmdline": "a\nb"}))
}

func TestHeaderFieldNames(t *testing.T) {
	require.Equal(t, "board_name, page_size",
		headerFieldNames(bootimg.HeaderFieldPageSize|bootimg.HeaderFieldBoardName))
	require.Empty(t, headerFieldNames(0))
}
