package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/errwrap"

	bootimg "github.com/chenxiaolong/DualBootPatcher-sub001"
)

const (
	cliWelcome = `
Please drag and drop the boot image you want to inspect
into this window.

After you drop the file, press the [Enter] key to continue.

> `
	cliStatError = `
An error occurred verifying that file:
"%s"

Try dragging and dropping a boot image you are able
to open.

> `
)

// splitError separates an errwrap error into the failed action and its
// cause. Other errors are returned whole as the action.
func splitError(err error) (string, string) {
	var w errwrap.Wrapper
	if !errors.As(err, &w) {
		return err.Error(), ""
	}
	wrapped := w.WrappedErrors()
	if len(wrapped) != 2 {
		return err.Error(), ""
	}
	action := wrapped[0].Error()
	if i := strings.IndexByte(action, ';'); i >= 0 {
		action = action[:i+1]
	}
	return action, wrapped[1].Error()
}

// wrapAction attaches the failed action to err for printError.
func wrapAction(err error, action string) error {
	if err == nil {
		return nil
	}
	return errwrap.Wrap(errors.New(action), err)
}

func cliPromptDrag(out io.Writer, msg string) {
	fmt.Fprintf(out, "\n%s Try dragging and dropping a boot image here.\n\n> ", msg)
}

// cliGetInputPath asks for an image path until an existing regular file is
// given.
func cliGetInputPath(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, cliWelcome)
	scanner := bufio.NewScanner(in)

	for {
		if !scanner.Scan() {
			fmt.Fprintln(out)
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}

		path := strings.TrimSpace(scanner.Text())
		if (strings.HasPrefix(path, "\"") && strings.HasSuffix(path, "\"") && len(path) >= 2) ||
			(strings.HasPrefix(path, "'") && strings.HasSuffix(path, "'") && len(path) >= 2) {
			path = path[1 : len(path)-1]
		}

		if len(path) == 0 {
			cliPromptDrag(out, "That wasn't the path to a file.")
			continue
		}

		fInfo, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				cliPromptDrag(out, "That file doesn't exist.")
			} else {
				fmt.Fprintf(out, cliStatError, err.Error())
			}
			continue
		}

		if fInfo.IsDir() {
			cliPromptDrag(out, "That's a folder, not a file.")
			continue
		}

		fmt.Fprintln(out)
		return path, nil
	}
}

// openReader opens path with the formats selected on the command line.
func openReader(path string) (*bootimg.Reader, error) {
	r := bootimg.NewReader()
	if len(formats) == 0 {
		if err := r.EnableFormatsAll(); err != nil {
			return nil, err
		}
	}
	for _, name := range formats {
		if err := r.EnableFormatByName(strings.TrimSpace(name)); err != nil {
			return nil, err
		}
	}

	if strict {
		if err := r.SetOption("strict", "true"); err != nil {
			return nil, err
		}
	}

	if err := r.OpenFilename(path); err != nil {
		return nil, wrapAction(err, "opening "+path)
	}
	return r, nil
}

// readAllEntry reads the remainder of the current entry.
func readAllEntry(r *bootimg.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
