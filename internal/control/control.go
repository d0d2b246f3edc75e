// Package control parses Debian-style control stanzas — the RFC822-ish
// "Field: value" blocks found in Packages files and .deb control members —
// into struct-store records.
//
// The grammar is a small, deterministic subset:
//
//	Package: curl
//	Version: 8.4.0-1
//	Depends: libc6 (>= 2.34), libssl3
//	Description: command line tool for transferring data
//	 with URL syntax
//	 .
//	 The " ." line above decodes to an empty line; this one is
//	 kept as text once its single leading space is stripped.
//
// A stanza is a run of non-blank lines; a blank line (or EOF) ends it.
// A field starts at column zero as "Name:", and folds onto following
// lines that begin with linear whitespace. Each folded line has its
// single leading space removed; a folded line consisting solely of a
// lone "." decodes to an empty line, mirroring dpm_parse_control's
// decode_extended_value.
//
// Multi-stanza sources (an index with one stanza per package version) can be
// decompressed with Reader before tokenizing: a ".gz" suffix on the source
// path selects the standard library's compress/gzip reader and ".zst" the
// klauspost/compress zstd reader.
package control

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

var (
	errEmptyFieldName  = errors.New("control: empty field name")
	errWhitespaceInName = errors.New("control: whitespace in field name")
	errContinuationFirst = errors.New("control: stanza cannot start with a continuation line")
	errMissingColon    = errors.New("control: missing ':' in field line")
)

// Field is one "Name: value" entry, with Value holding the fully unfolded
// (continuation lines joined by '\n') field body.
type Field struct {
	Name  string
	Value string
	Line  int // 1-based line number of the field's first line, for diagnostics
}

// Stanza is an ordered sequence of fields, preserving source order and
// allowing repeated field names (control files don't forbid them, unlike
// the frontmatter dialect this parser's tokenizer is modeled on).
type Stanza struct {
	Fields []Field
}

// Get returns the value of the first field named name (case-sensitive, as
// dpkg's own control fields are conventionally Title-Cased), or "" if absent.
func (s Stanza) Get(name string) (string, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}

	return "", false
}

// Reader wraps r in a decompressor selected by name's suffix (gzip for
// ".gz", zstd for ".zst"), returning r itself if neither matches. It does
// not tokenize; pass the result to ParseAll.
func Reader(r io.Reader, name string) (io.Reader, error) {
	switch {
	case strings.HasSuffix(name, ".gz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("control: open gzip stream: %w", err)
		}

		return gz, nil
	case strings.HasSuffix(name, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("control: open zstd stream: %w", err)
		}

		return zr.IOReadCloser(), nil
	default:
		return r, nil
	}
}

// ParseAll tokenizes every stanza in r, in source order.
func ParseAll(r io.Reader) ([]Stanza, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	p := &parser{scanner: scanner}

	var stanzas []Stanza

	for {
		st, ok, err := p.parseStanza()
		if err != nil {
			return nil, err
		}

		if !ok {
			break
		}

		stanzas = append(stanzas, st)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("control: read: %w", err)
	}

	return stanzas, nil
}

type parser struct {
	scanner *bufio.Scanner
	lineNum int
	pending string
	hasMore bool
}

func (p *parser) nextLine() (string, bool) {
	if p.hasMore {
		p.hasMore = false

		return p.pending, true
	}

	if !p.scanner.Scan() {
		return "", false
	}

	p.lineNum++

	return p.scanner.Text(), true
}

func (p *parser) unread(line string) {
	p.pending = line
	p.hasMore = true
}

// parseStanza consumes leading blank lines, then one stanza up to (but not
// including) the blank line or EOF that terminates it.
func (p *parser) parseStanza() (Stanza, bool, error) {
	var line string

	var ok bool

	for {
		line, ok = p.nextLine()
		if !ok {
			return Stanza{}, false, nil
		}

		if strings.TrimSpace(line) != "" {
			break
		}
	}

	var fields []Field

	firstLineOfStanza := p.lineNum

	for {
		if isContinuation(line) {
			if len(fields) == 0 {
				return Stanza{}, false, fmt.Errorf("%w (line %d)", errContinuationFirst, firstLineOfStanza)
			}

			last := &fields[len(fields)-1]
			last.Value += "\n" + decodeContinuation(line)
		} else {
			name, value, fieldLine, err := splitField(line, p.lineNum)
			if err != nil {
				return Stanza{}, false, err
			}

			fields = append(fields, Field{Name: name, Value: value, Line: fieldLine})
		}

		line, ok = p.nextLine()
		if !ok {
			break
		}

		if strings.TrimSpace(line) == "" {
			break
		}
	}

	return Stanza{Fields: fields}, true, nil
}

func isContinuation(line string) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

// decodeContinuation strips the single leading linear-whitespace character
// and collapses a lone "." line to empty, per dpm_parse_control's folding
// rule for multi-line field bodies (e.g. long-form Description text).
func decodeContinuation(line string) string {
	body := line[1:]
	if body == "." {
		return ""
	}

	return body
}

func splitField(line string, lineNum int) (name, value string, outLine int, err error) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", 0, fmt.Errorf("%w (line %d)", errMissingColon, lineNum)
	}

	name = line[:idx]
	if name == "" {
		return "", "", 0, fmt.Errorf("%w (line %d)", errEmptyFieldName, lineNum)
	}

	if bytes.IndexByte([]byte(name), ' ') != -1 || bytes.IndexByte([]byte(name), '\t') != -1 {
		return "", "", 0, fmt.Errorf("%w (line %d)", errWhitespaceInName, lineNum)
	}

	value = strings.TrimLeft(line[idx+1:], " \t")

	return name, value, lineNum, nil
}
