package main

import (
	"github.com/spf13/pflag"

	bootimg "github.com/chenxiaolong/DualBootPatcher-sub001"
)

// formatValue is a pflag.Value holding a single boot image format.
type formatValue struct {
	format *bootimg.Format
}

var _ pflag.Value = formatValue{}

func (v formatValue) String() string {
	if v.format == nil || *v.format == 0 {
		return ""
	}
	return v.format.String()
}

func (v formatValue) Set(s string) error {
	f, err := bootimg.ParseFormat(s)
	if err != nil {
		return err
	}
	*v.format = f
	return nil
}

func (v formatValue) Type() string { return "format" }

// addFormatFlag registers --format/-f on fs. Zero means not given.
func addFormatFlag(fs *pflag.FlagSet, format *bootimg.Format, usage string) {
	fs.VarP(formatValue{format: format}, "format", "f", usage)
}
