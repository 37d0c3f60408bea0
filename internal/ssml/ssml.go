// Package ssml renders chunk text as a Speech Synthesis Markup document.
package ssml

import (
	"bytes"
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"
)

var (
	headingLine    = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
)

// Options tune the generated document.
type Options struct {
	// Rate is the speaking rate multiplier; 1 or 0 leaves the default rate.
	Rate         float64
	LanguageCode string
}

// Build wraps text in a <speak> document. Blank-line separated blocks become
// <p> elements and markdown heading lines are read with emphasis followed by
// a pause.
func Build(text string, opts Options) string {
	var b bytes.Buffer
	b.WriteString("<speak")
	if opts.LanguageCode != "" {
		b.WriteString(` xml:lang="`)
		_ = xml.EscapeText(&b, []byte(opts.LanguageCode))
		b.WriteString(`"`)
	}
	b.WriteString(">")

	prosody := opts.Rate > 0 && opts.Rate != 1
	if prosody {
		b.WriteString(`<prosody rate="`)
		b.WriteString(strconv.Itoa(int(opts.Rate*100 + 0.5)))
		b.WriteString(`%">`)
	}

	for _, block := range paragraphBreak.Split(strings.TrimSpace(text), -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		var body []string
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			if m := headingLine.FindStringSubmatch(line); m != nil {
				b.WriteString(`<emphasis level="moderate">`)
				escape(&b, strings.TrimSpace(m[1]))
				b.WriteString(`</emphasis><break time="500ms"/>`)
				continue
			}
			if line != "" {
				body = append(body, line)
			}
		}
		if len(body) > 0 {
			b.WriteString("<p>")
			escape(&b, strings.Join(body, " "))
			b.WriteString("</p>")
		}
	}

	if prosody {
		b.WriteString("</prosody>")
	}
	b.WriteString("</speak>")
	return b.String()
}

// textEscaper escapes only what element content requires, so quotes and
// apostrophes do not grow the document.
var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(b *bytes.Buffer, s string) {
	_, _ = textEscaper.WriteString(b, s)
}
