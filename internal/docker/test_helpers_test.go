package docker_test

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

type mockWriter struct {
	buf *bytes.Buffer
}

func newMockWriter() *mockWriter {
	return &mockWriter{buf: &bytes.Buffer{}}
}

func (m *mockWriter) Print(v ...interface{}) { fmt.Fprint(m.buf, v...) }
func (m *mockWriter) Printf(format string, v ...interface{}) {
	fmt.Fprintf(m.buf, format, v...)
}
func (m *mockWriter) Println(v ...interface{}) { fmt.Fprintln(m.buf, v...) }
func (m *mockWriter) Section(title string) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(m.buf, "\n%s\n  %s\n%s\n", rule, title, rule)
}
func (m *mockWriter) Warning(v ...interface{}) {
	fmt.Fprint(m.buf, "Warning: ")
	fmt.Fprintln(m.buf, v...)
}
func (m *mockWriter) Warningf(format string, v ...interface{}) {
	fmt.Fprintf(m.buf, "Warning: "+format+"\n", v...)
}
func (m *mockWriter) Fatal(v ...interface{}) {
	fmt.Fprint(m.buf, "Fatal: ")
	fmt.Fprintln(m.buf, v...)
}
func (m *mockWriter) Fatalf(format string, v ...interface{}) {
	fmt.Fprintf(m.buf, "Fatal: "+format+"\n", v...)
}
func (m *mockWriter) GetWriter() io.Writer { return m.buf }
func (m *mockWriter) String() string       { return m.buf.String() }
