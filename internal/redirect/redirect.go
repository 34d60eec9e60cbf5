// Package redirect parses the `<`, `>` and `>>` redirection tokens of a
// command line and opens the files they name.
package redirect

import (
	"errors"
	"fmt"
	"os"
)

const (
	inputToken  = "<"
	outputToken = ">"
	appendToken = ">>"

	// outputPerm is the mode of files created by output redirection, before
	// the process umask is applied.
	outputPerm = 0666
)

// Request describes where a command's standard input and output should come
// from and go to. Empty paths leave the stream inherited.
type Request struct {
	Input  string
	Output string
	Append bool
}

// Empty returns whether the Request redirects nothing.
func (r Request) Empty() bool {
	return r.Input == "" && r.Output == ""
}

// OpenError is returned when a redirection file can't be opened. The
// redirection it belongs to is skipped.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// Parse splits args into the program arguments and a Request. The program
// name at args[0] is never treated as an operator. An operator must be
// followed by a filename; a trailing operator is kept as a plain argument.
// When a stream is redirected more than once, the last redirection wins.
func Parse(args []string) ([]string, Request) {
	var req Request

	if len(args) == 0 {
		return args, req
	}

	clean := []string{args[0]}

	for i := 1; i < len(args); i++ {
		if i+1 >= len(args) {
			clean = append(clean, args[i])
			continue
		}

		switch args[i] {
		case inputToken:
			req.Input = args[i+1]
			i++
		case outputToken:
			req.Output = args[i+1]
			req.Append = false
			i++
		case appendToken:
			req.Output = args[i+1]
			req.Append = true
			i++
		default:
			clean = append(clean, args[i])
		}
	}

	return clean, req
}

// Files holds the files opened for a Request. A nil file means the stream
// isn't redirected.
type Files struct {
	Stdin  *os.File
	Stdout *os.File
}

// Close closes any opened files.
func (f *Files) Close() error {
	var errs []error

	if f.Stdin != nil {
		errs = append(errs, f.Stdin.Close())
		f.Stdin = nil
	}

	if f.Stdout != nil {
		errs = append(errs, f.Stdout.Close())
		f.Stdout = nil
	}

	return errors.Join(errs...)
}

// Open opens the files named by the Request. Input must already exist and is
// opened read-only. Output is created if absent and either truncated or
// appended to.
//
// A file that fails to open is left nil and reported as an *OpenError in the
// returned error; the other file is still opened. The returned Files is never
// nil and must be closed by the caller.
func (r Request) Open() (*Files, error) {
	files := &Files{}

	var errs []error

	if r.Input != "" {
		f, err := os.Open(r.Input)
		if err != nil {
			errs = append(errs, &OpenError{Path: r.Input, Err: err})
		} else {
			files.Stdin = f
		}
	}

	if r.Output != "" {
		flags := os.O_WRONLY | os.O_CREATE
		if r.Append {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}

		f, err := os.OpenFile(r.Output, flags, outputPerm)
		if err != nil {
			errs = append(errs, &OpenError{Path: r.Output, Err: err})
		} else {
			files.Stdout = f
		}
	}

	return files, errors.Join(errs...)
}
