package template

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"strings"
)

// objectWriter assembles an uncompressed PDF from numbered objects and
// computes the cross-reference table on output.
type objectWriter struct {
	objects [][]byte // index 0 is object 1
	version string
}

func newObjectWriter(version string) *objectWriter {
	return &objectWriter{version: version}
}

// reserve allocates an object number whose body is set later
func (w *objectWriter) reserve() int {
	w.objects = append(w.objects, nil)
	return len(w.objects)
}

func (w *objectWriter) set(num int, body string) {
	w.objects[num-1] = []byte(body)
}

func (w *objectWriter) add(body string) int {
	num := w.reserve()
	w.set(num, body)
	return num
}

// addStream adds a stream object. dict holds the entries without the
// surrounding << >> and without /Length.
func (w *objectWriter) addStream(dict, data string) int {
	var b strings.Builder
	fmt.Fprintf(&b, "<< %s /Length %d >>\nstream\n", dict, len(data))
	b.WriteString(data)
	b.WriteString("\nendstream")
	return w.add(b.String())
}

func ref(num int) string {
	return fmt.Sprintf("%d 0 R", num)
}

// bytes serialises all objects with root as the catalog
func (w *objectWriter) bytes(root int) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xe2\xe3\xcf\xd3\n", w.version)

	offsets := make([]int, len(w.objects))
	for i, body := range w.objects {
		if body == nil {
			return nil, fmt.Errorf("object %d reserved but never set", i+1)
		}
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", i+1)
		buf.Write(body)
		buf.WriteString("\nendobj\n")
	}

	id := md5.Sum(buf.Bytes())

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(w.objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}

	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %s /ID [<%x> <%x>] >>\n",
		len(w.objects)+1, ref(root), id, id)
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	return buf.Bytes(), nil
}

// literal escapes s as a PDF literal string including the parentheses
func literal(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return "(" + r.Replace(s) + ")"
}
