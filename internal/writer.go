package internal

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Writer is where launcher output goes. Passing it around instead of printing
// directly keeps the docker and gptme packages silent by default and lets
// tests capture everything.
type Writer interface {
	// Print writes a message to the output stream.
	Print(v ...any)

	// Printf writes a formatted message to the output stream.
	Printf(format string, v ...any)

	// Println writes a message with a newline to the output stream.
	Println(v ...any)

	// Section writes a banner separating the phases of output.
	Section(title string)

	// Warning writes a warning message to the error stream.
	Warning(v ...any)

	// Warningf writes a formatted warning message to the error stream.
	Warningf(format string, v ...any)

	// Fatal writes an error message and terminates.
	Fatal(v ...any)

	// Fatalf writes a formatted error message and terminates.
	Fatalf(format string, v ...any)

	// GetWriter returns the underlying io.Writer for direct writing.
	GetWriter() io.Writer
}

// StandardWriter is the production Writer: normal output on one stream,
// warnings and fatal errors on the other.
type StandardWriter struct {
	out io.Writer
	err io.Writer
}

// NewStandardWriter creates a Writer on stdout and stderr.
func NewStandardWriter() *StandardWriter {
	return &StandardWriter{
		out: os.Stdout,
		err: os.Stderr,
	}
}

// NewCustomWriter creates a Writer on the given streams. out carries normal
// output, err carries warnings and fatal errors.
func NewCustomWriter(out, err io.Writer) *StandardWriter {
	return &StandardWriter{
		out: out,
		err: err,
	}
}

func (w *StandardWriter) Print(v ...any) {
	fmt.Fprint(w.out, v...)
}

func (w *StandardWriter) Printf(format string, v ...any) {
	fmt.Fprintf(w.out, format, v...)
}

func (w *StandardWriter) Println(v ...any) {
	fmt.Fprintln(w.out, v...)
}

// Section writes a banner separating the phases of output, one per launch
// phase (build, start).
func (w *StandardWriter) Section(title string) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w.out, "\n%s\n  %s\n%s\n", rule, title, rule)
}

// Warning and Warningf prefix their message with "Warning: " on the error
// stream.
func (w *StandardWriter) Warning(v ...any) {
	fmt.Fprint(w.err, "Warning: ")
	fmt.Fprintln(w.err, v...)
}

func (w *StandardWriter) Warningf(format string, v ...any) {
	fmt.Fprintf(w.err, "Warning: "+format+"\n", v...)
}

// Fatal and Fatalf write to the error stream and exit with status 1.
func (w *StandardWriter) Fatal(v ...any) {
	fmt.Fprintln(w.err, v...)
	os.Exit(1)
}

func (w *StandardWriter) Fatalf(format string, v ...any) {
	fmt.Fprintf(w.err, format+"\n", v...)
	os.Exit(1)
}

func (w *StandardWriter) GetWriter() io.Writer {
	return w.out
}
