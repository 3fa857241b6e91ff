package shipwright

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Paragraph is an ordered map of field -> value. Field order is
// insertion order and is preserved on serialisation; values may be
// multi-line, represented internally as "\n"-joined continuation text.
type Paragraph struct {
	order  []string
	values map[string]string
}

func NewParagraph() *Paragraph {
	return &Paragraph{values: make(map[string]string)}
}

// Set adds a field. Setting the same key twice on a Paragraph built in code
// is a programmer error, mirroring the parser's duplicate-field rejection.
func (p *Paragraph) Set(key, value string) error {
	if _, exists := p.values[key]; exists {
		return newInternalError("paragraph.go", 0, "duplicate field %q", key)
	}
	p.order = append(p.order, key)
	p.values[key] = value
	return nil
}

// SetOptional sets key only if value is non-empty.
func (p *Paragraph) SetOptional(key, value string) error {
	if value == "" {
		return nil
	}
	return p.Set(key, value)
}

func (p *Paragraph) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

func (p *Paragraph) GetOr(key, def string) string {
	if v, ok := p.values[key]; ok {
		return v
	}
	return def
}

func (p *Paragraph) Keys() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// ParseParagraphs reads an ordered sequence of paragraphs separated by
// blank lines. Continuation lines (prefixed by whitespace) extend the value
// of the preceding field. Trailing whitespace is tolerated; a field
// repeated within one paragraph is an error.
func ParseParagraphs(r io.Reader) ([]*Paragraph, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var paragraphs []*Paragraph
	var cur *Paragraph
	var lastKey string
	lineNo := 0

	flush := func() {
		if cur != nil && len(cur.order) > 0 {
			paragraphs = append(paragraphs, cur)
		}
		cur = nil
		lastKey = ""
	}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimRight(raw, " \t\r")

		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		if (line[0] == ' ' || line[0] == '\t') && cur != nil && lastKey != "" {
			cont := strings.TrimLeft(line, " \t")
			cur.values[lastKey] += "\n" + cont
			continue
		}

		if cur == nil {
			cur = NewParagraph()
		}

		idx := strings.Index(line, ":")
		if idx < 0 {
			return nil, newInternalError("paragraph.go", lineNo, "malformed field at line %d: %q", lineNo, raw)
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])

		if _, exists := cur.values[key]; exists {
			return nil, newInternalError("paragraph.go", lineNo, "duplicate field %q at line %d", key, lineNo)
		}
		if err := cur.Set(key, val); err != nil {
			return nil, err
		}
		lastKey = key
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return paragraphs, nil
}

// WriteParagraphs serialises paragraphs in field-insertion order, one blank
// line between paragraphs, exactly one trailing newline per paragraph.
func WriteParagraphs(w io.Writer, paragraphs []*Paragraph) error {
	bw := bufio.NewWriter(w)
	for i, p := range paragraphs {
		if i > 0 {
			if _, err := bw.WriteString("\n"); err != nil {
				return err
			}
		}
		for _, key := range p.order {
			val := p.values[key]
			lines := strings.Split(val, "\n")
			if _, err := fmt.Fprintf(bw, "%s: %s\n", key, lines[0]); err != nil {
				return err
			}
			for _, cont := range lines[1:] {
				if _, err := fmt.Fprintf(bw, " %s\n", cont); err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}
