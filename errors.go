package bootimg

import "errors"

// Reader errors
var (
	ErrReaderInvalidState  = errors.New("reader: invalid state")
	ErrUnknownOption       = errors.New("reader: unknown option")
	ErrNoFormatsRegistered = errors.New("reader: no formats registered")
	ErrUnknownFileFormat   = errors.New("reader: failed to determine boot image format")
)

// Writer errors
var (
	ErrWriterInvalidState = errors.New("writer: invalid state")
	ErrInvalidFormatCode  = errors.New("writer: invalid format code")
	ErrInvalidFormatName  = errors.New("writer: invalid format name")
	ErrNoFormatSelected   = errors.New("writer: no format selected")
	ErrNoFormatRegistered = errors.New("writer: no format registered")
)

// ErrEndOfEntries terminates entry iteration on both the read and write side.
// It is not a failure.
var ErrEndOfEntries = errors.New("end of entries")

// Segment errors
var (
	ErrAddEntryInIncorrectState  = errors.New("segment: entries can only be set before iteration starts")
	ErrEntryWouldOverflowOffset  = errors.New("segment: entry would overflow offset")
	ErrReadWouldOverflowInteger  = errors.New("segment: read would overflow integer")
	ErrWriteWouldOverflowInteger = errors.New("segment: write would overflow integer")
	ErrEntrySizeTooLarge         = errors.New("segment: entry size too large")
	ErrWriteExceedsEntrySize     = errors.New("segment: write exceeds declared entry size")
	ErrNoCurrentEntry            = errors.New("segment: no current entry")
	ErrEntryIsTruncated          = errors.New("segment: entry is smaller than its declared size")
)

// Android and Bump errors
var (
	ErrAndroidHeaderNotFound    = errors.New("android: header not found")
	ErrAndroidHeaderOutOfBounds = errors.New("android: header exceeds file bounds")
	ErrInvalidPageSize          = errors.New("android: invalid page size")
	ErrMissingPageSize          = errors.New("android: page size not set")
	ErrBoardNameTooLong         = errors.New("android: board name too long")
	ErrKernelCmdlineTooLong     = errors.New("android: kernel cmdline too long")
)

// Loki errors
var (
	ErrLokiHeaderTooSmall            = errors.New("loki: header too small")
	ErrLokiMagicNotFound             = errors.New("loki: magic not found")
	ErrInvalidKernelAddress          = errors.New("loki: invalid kernel address")
	ErrShellcodeNotFound             = errors.New("loki: shellcode not found")
	ErrNoRamdiskGzipHeaderFound      = errors.New("loki: no ramdisk gzip header found")
	ErrRamdiskOffsetGreaterThanAboot = errors.New("loki: ramdisk offset greater than aboot offset")
	ErrAbootImageTooSmall            = errors.New("loki: aboot image too small")
	ErrAbootImageTooLarge            = errors.New("loki: aboot image too large")
	ErrNoAbootImage                  = errors.New("loki: no aboot image provided")
	ErrAbootFunctionNotFound         = errors.New("loki: signature check function not found in aboot")
	ErrAbootFunctionOutOfRange       = errors.New("loki: signature check function lies outside aboot")
	ErrUnsupportedAbootImage         = errors.New("loki: unsupported aboot image")
)

// Mtk errors
var (
	ErrMtkHeaderNotFound              = errors.New("mtk: header not found")
	ErrMismatchedKernelSizeInHeaders  = errors.New("mtk: mismatched kernel size in android and mtk headers")
	ErrMismatchedRamdiskSizeInHeaders = errors.New("mtk: mismatched ramdisk size in android and mtk headers")
	ErrInvalidMtkHeaderSize           = errors.New("mtk: mtk header entry must be 512 bytes")
	ErrMtkSizeTooLarge                = errors.New("mtk: section size too large")
)

// Sony ELF errors
var (
	ErrSonyElfHeaderTooSmall  = errors.New("sonyelf: header too small")
	ErrSonyElfMagicNotFound   = errors.New("sonyelf: magic not found")
	ErrSonyElfInvalidHeader   = errors.New("sonyelf: invalid ELF header")
	ErrSonyElfTooManySegments = errors.New("sonyelf: too many program headers")
	ErrSonyElfInvalidSegment  = errors.New("sonyelf: invalid program header type or flags")
	ErrSonyElfCmdlineTooLong  = errors.New("sonyelf: kernel cmdline too long")
)
