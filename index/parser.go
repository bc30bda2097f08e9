package index

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

type parseState int

const (
	stateOutside parseState = iota // before the first header
	stateHeader
	stateBody
)

// Parse recovers the ordered entries of an artifact. Malformed input never
// fails the parse; only read errors are returned.
func Parse(r io.Reader) ([]Entry, error) {
	p := &parser{}
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			p.feed(strings.TrimSuffix(line, "\n"))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading artifact: %w", err)
		}
	}
	return p.finish(), nil
}

// ParseString parses an in-memory artifact
func ParseString(s string) []Entry {
	entries, _ := Parse(strings.NewReader(s))
	return entries
}

// ParseFile parses the artifact at path. A missing file yields an error
// wrapping fs.ErrNotExist.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

type parser struct {
	state   parseState
	entries []Entry
	cur     *Entry
	body    []string
	group   string
}

func (p *parser) feed(line string) {
	switch {
	case isBar(line):
		if p.state == stateHeader {
			p.state = stateBody
			return
		}
		p.flush()
		p.cur = &Entry{CharCount: -1, Group: p.group}
		p.state = stateHeader
		return

	case isGroupMarker(line):
		p.trackGroup(strings.TrimSpace(line))
		return

	case isDocMarker(line):
		if p.state == stateHeader {
			p.state = stateBody
		}
		return
	}

	switch p.state {
	case stateHeader:
		trimmed := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		switch {
		case trimmed == "":
			return
		case strings.HasPrefix(trimmed, LabelTitle):
			p.cur.Title = labelValue(line, LabelTitle)
			return
		case strings.HasPrefix(trimmed, LabelFormat):
			parseMetadata(trimmed, p.cur)
			return
		case strings.HasPrefix(trimmed, LabelSource):
			p.cur.Source = labelValue(line, LabelSource)
			return
		}
		// header without closing bar: the body starts here
		p.state = stateBody
		p.body = append(p.body, unescapeLine(line))

	case stateBody:
		p.body = append(p.body, unescapeLine(line))

	case stateOutside:
		if isLabelLine(line) {
			return
		}
		if p.cur == nil {
			p.cur = &Entry{CharCount: -1, Group: p.group}
		}
		p.body = append(p.body, unescapeLine(line))
	}
}

func (p *parser) trackGroup(line string) {
	switch {
	case strings.HasPrefix(line, "<!-- BEGIN_"):
		p.group = strings.TrimSuffix(strings.TrimPrefix(line, "<!-- BEGIN_"), " -->")
	case strings.HasPrefix(line, "<!-- END_"):
		p.group = ""
	}
}

// flush closes the current entry. Untitled stray content made only of blank
// lines is dropped.
func (p *parser) flush() {
	if p.cur == nil {
		return
	}
	end := len(p.body)
	for end > 0 && strings.TrimSpace(p.body[end-1]) == "" {
		end--
	}
	p.cur.Body = strings.Join(p.body[:end], "\n")

	if p.state != stateOutside || p.cur.Body != "" {
		p.entries = append(p.entries, *p.cur)
	}
	p.cur = nil
	p.body = p.body[:0]
}

func (p *parser) finish() []Entry {
	p.flush()
	if p.entries == nil {
		return []Entry{}
	}
	return p.entries
}

// labelValue returns what follows label on line, minus the one separating
// space the writer puts there. Other leading and trailing spaces belong to
// the value.
func labelValue(line, label string) string {
	line = strings.TrimSuffix(line, "\r")
	v := line[strings.Index(line, label)+len(label):]
	return strings.TrimPrefix(v, " ")
}

func isLabelLine(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, LabelTitle) || strings.HasPrefix(t, LabelFormat) || strings.HasPrefix(t, LabelSource)
}
