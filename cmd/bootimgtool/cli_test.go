package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	bootimg "github.com/chenxiaolong/DualBootPatcher-sub001"
	"github.com/chenxiaolong/DualBootPatcher-sub001/internal/ramdisk"
)

func TestSplitError(t *testing.T) {
	action, cause := splitError(wrapAction(errors.New("file is truncated"), "reading header"))
	require.Equal(t, "reading header", action)
	require.Equal(t, "file is truncated", cause)

	action, cause = splitError(errors.New("plain"))
	require.Equal(t, "plain", action)
	require.Empty(t, cause)

	require.NoError(t, wrapAction(nil, "anything"))

	// The cause stays reachable
	err := wrapAction(bootimg.ErrUnknownFileFormat, "opening boot.img")
	require.ErrorIs(t, err, bootimg.ErrUnknownFileFormat)
}

func TestCliGetInputPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "boot.img")
	require.NoError(t, os.WriteFile(file, []byte("ANDROID!"), 0o644))

	in := strings.NewReader(strings.Join([]string{
		"",
		filepath.Join(dir, "missing.img"),
		"'" + dir + "'",
		`"` + file + `"`,
	}, "\n") + "\n")
	var out bytes.Buffer

	path, err := cliGetInputPath(in, &out)
	require.NoError(t, err)
	require.Equal(t, file, path)
	require.Contains(t, out.String(), "That wasn't the path to a file.")
	require.Contains(t, out.String(), "That file doesn't exist.")
	require.Contains(t, out.String(), "That's a folder, not a file.")

	_, err = cliGetInputPath(strings.NewReader(""), io.Discard)
	require.ErrorIs(t, err, io.EOF)
}

func TestFormatFlag(t *testing.T) {
	var format bootimg.Format
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	addFormatFlag(fs, &format, "output format")

	flag := fs.Lookup("format")
	require.NotNil(t, flag)
	require.Equal(t, "format", flag.Value.Type())
	require.Empty(t, flag.Value.String())

	require.NoError(t, fs.Parse([]string{"-f", "sony_elf"}))
	require.Equal(t, bootimg.FormatSonyElf, format)
	require.Equal(t, "sony_elf", flag.Value.String())

	require.NoError(t, fs.Parse([]string{"--format", "mtk"}))
	require.Equal(t, bootimg.FormatMtk, format)

	require.Error(t, fs.Parse([]string{"--format", "uboot"}))
	require.Equal(t, bootimg.FormatMtk, format)
}

func TestParseCompression(t *testing.T) {
	c, err := parseCompression("xz")
	require.NoError(t, err)
	require.Equal(t, ramdisk.CompXz, c)

	c, err = parseCompression("gzip")
	require.NoError(t, err)
	require.Equal(t, ramdisk.CompGzip, c)

	_, err = parseCompression("unknown")
	require.Error(t, err)
}
