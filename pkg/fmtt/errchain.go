// Package fmtt prints diagnostics for command-line output.
package fmtt

import (
	"errors"
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
)

// Typed errors dump their fields, not their Error text.
var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// WriteErrChain writes each layer of err's Unwrap chain with its type. With dump set, every
// layer is also spew-dumped, which shows the fields of typed errors.
func WriteErrChain(w io.Writer, err error, dump bool) {
	if err == nil {
		fmt.Fprintln(w, "<nil>")
		return
	}
	for i, e := 0, err; e != nil; i, e = i+1, errors.Unwrap(e) {
		fmt.Fprintf(w, "[%d] %T: %v\n", i, e, e)
		if dump {
			dumper.Fdump(w, e)
		}
	}
}

// Dump writes a readable deep dump of v.
func Dump(w io.Writer, v any) { dumper.Fdump(w, v) }
