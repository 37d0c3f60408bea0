// Package segment turns a markdown document into ordered, size bounded
// chunks grouped by section.
package segment

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/loqalabs/narrator/internal/pipeline"
)

const (
	defaultTarget = 1400
	minTarget     = 200
	maxTarget     = 2000
	defaultCap    = 4000
)

var (
	headingLine    = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	paragraphSplit = regexp.MustCompile(`\n{2,}`)
	sentenceEnd    = regexp.MustCompile(`[.!?]+\s+`)
)

// Section is a heading and the text below it. Depth is 0 for text that
// precedes the first heading or documents without headings.
type Section struct {
	Title string
	Depth int
	Body  string
	Index int
}

// Options bound chunk sizes in characters.
type Options struct {
	TargetSize int
	HardCap    int
}

func (o Options) limits() (target, hardCap int) {
	target = o.TargetSize
	if target == 0 {
		target = defaultTarget
	}
	target = max(minTarget, min(maxTarget, target))
	hardCap = o.HardCap
	if hardCap == 0 {
		hardCap = defaultCap
	}
	return target, max(target, hardCap)
}

// Splitter segments raw markdown for the pipeline.
type Splitter struct {
	opts Options
}

func NewSplitter(opts Options) *Splitter {
	return &Splitter{opts: opts}
}

// Segment sanitizes md and chunks it.
func (s *Splitter) Segment(md string) []pipeline.Chunk {
	return ChunkSections(SplitSections(Sanitize(md)), s.opts)
}

// SplitSections groups lines under the nearest preceding heading.
func SplitSections(md string) []Section {
	var (
		sections []Section
		current  = Section{}
		body     []string
	)
	emit := func() {
		current.Body = strings.TrimSpace(strings.Join(body, "\n"))
		if current.Title != "" || current.Body != "" {
			current.Index = len(sections)
			sections = append(sections, current)
		}
	}
	for _, line := range strings.Split(md, "\n") {
		m := headingLine.FindStringSubmatch(line)
		if m == nil {
			body = append(body, line)
			continue
		}
		title := strings.TrimSpace(m[2])
		if title == "" {
			continue
		}
		emit()
		current = Section{Title: title, Depth: len(m[1])}
		body = nil
	}
	emit()
	return sections
}

// ChunkSections batches adjacent paragraphs of each section up to the target
// size. The first chunk of a titled section is prefixed with its heading and
// the prefix counts toward that chunk's size; a titled section without body
// becomes a heading-only chunk. Paragraphs over the hard cap are split at
// sentence ends, and sentences over the cap at word boundaries. Chunks with
// body text never exceed the hard cap. Indices run 0..N-1 across the document.
func ChunkSections(sections []Section, opts Options) []pipeline.Chunk {
	target, hardCap := opts.limits()
	var chunks []pipeline.Chunk

	for _, sec := range sections {
		heading := ""
		if sec.Title != "" {
			heading = strings.Repeat("#", sec.Depth) + " " + sec.Title
		}
		add := func(text string) {
			chunks = append(chunks, pipeline.Chunk{
				Index:        len(chunks),
				Text:         text,
				SectionTitle: sec.Title,
				SectionIndex: sec.Index,
				HeadingDepth: sec.Depth,
			})
		}
		push := func(text string) {
			if heading != "" {
				text = heading + "\n\n" + text
				heading = ""
			}
			add(text)
		}
		// prefix is the room the pending heading takes in the next chunk.
		prefix := func() int {
			if heading == "" {
				return 0
			}
			return utf8.RuneCountInString(heading) + 2
		}

		var paragraphs []string
		for _, p := range paragraphSplit.Split(sec.Body, -1) {
			if p = strings.TrimSpace(p); p != "" {
				paragraphs = append(paragraphs, p)
			}
		}
		// A heading too long to share a chunk stands alone.
		if heading != "" && (len(paragraphs) == 0 || prefix() > hardCap/2) {
			add(heading)
			heading = ""
		}
		if len(paragraphs) == 0 {
			continue
		}

		var (
			buf  []string
			size int
		)
		flush := func() {
			if len(buf) > 0 {
				push(strings.Join(buf, "\n\n"))
				buf, size = nil, 0
			}
		}
		for _, p := range paragraphs {
			n := utf8.RuneCountInString(p)
			next := size + n
			if size > 0 {
				next += 2
			}
			if next+prefix() <= target {
				buf = append(buf, p)
				size = next
				continue
			}
			flush()
			if room := hardCap - prefix(); n > room {
				for _, piece := range splitOversize(p, room, hardCap) {
					push(piece)
				}
				continue
			}
			buf = append(buf, p)
			size = n
		}
		flush()
	}
	return chunks
}

// splitOversize packs sentences into pieces of at most hardCap characters.
// The first piece is held to firstCap to leave room for a heading.
func splitOversize(paragraph string, firstCap, hardCap int) []string {
	var (
		pieces []string
		buf    []string
		size   int
	)
	limit := func() int {
		if len(pieces) == 0 {
			return firstCap
		}
		return hardCap
	}
	flush := func() {
		if len(buf) > 0 {
			pieces = append(pieces, strings.Join(buf, " "))
			buf, size = nil, 0
		}
	}
	for _, s := range sentences(paragraph) {
		n := utf8.RuneCountInString(s)
		next := size + n
		if size > 0 {
			next++
		}
		switch {
		case next <= limit():
			buf = append(buf, s)
			size = next
		case n > limit():
			flush()
			pieces = append(pieces, splitWords(s, limit())...)
		default:
			flush()
			buf = append(buf, s)
			size = n
		}
	}
	flush()
	return pieces
}

func sentences(paragraph string) []string {
	var out []string
	rest := paragraph
	for {
		loc := sentenceEnd.FindStringIndex(rest)
		if loc == nil {
			break
		}
		// Keep the punctuation, drop the whitespace.
		end := loc[0] + len(strings.TrimRight(rest[loc[0]:loc[1]], " \t\n\r"))
		out = append(out, rest[:end])
		rest = rest[loc[1]:]
	}
	if rest = strings.TrimSpace(rest); rest != "" {
		out = append(out, rest)
	}
	return out
}

func splitWords(s string, hardCap int) []string {
	var (
		pieces []string
		cur    strings.Builder
		size   int
	)
	for _, w := range strings.Fields(s) {
		n := utf8.RuneCountInString(w)
		for n > hardCap {
			if size > 0 {
				pieces = append(pieces, cur.String())
				cur.Reset()
				size = 0
			}
			head, tail := splitRunes(w, hardCap)
			pieces = append(pieces, head)
			w, n = tail, utf8.RuneCountInString(tail)
		}
		if n == 0 {
			continue
		}
		if size > 0 && size+1+n > hardCap {
			pieces = append(pieces, cur.String())
			cur.Reset()
			size = 0
		}
		if size > 0 {
			cur.WriteByte(' ')
			size++
		}
		cur.WriteString(w)
		size += n
	}
	if size > 0 {
		pieces = append(pieces, cur.String())
	}
	return pieces
}

func splitRunes(s string, n int) (string, string) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}
