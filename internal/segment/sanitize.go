package segment

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	blockMath  = regexp.MustCompile(`\$\$[\s\S]*?\$\$`)
	inlineMath = regexp.MustCompile(`\$[^$\n]+\$`)
	spaceRun   = regexp.MustCompile(`[ \t]+`)
)

// Sanitize keeps the readable parts of a markdown document. Headings survive
// as "## Title" lines and every other block becomes one plain paragraph;
// code, math, images, tables, HTML and rules are dropped, links keep their
// text.
func Sanitize(md string) string {
	md = blockMath.ReplaceAllString(md, "")
	md = inlineMath.ReplaceAllString(md, "")

	doc := blackfriday.New(blackfriday.WithExtensions(
		blackfriday.CommonExtensions | blackfriday.Footnotes,
	)).Parse([]byte(md))

	r := &renderer{}
	doc.Walk(r.renderNode)
	r.flush()
	return strings.Join(r.blocks, "\n\n")
}

type renderer struct {
	blocks []string
	buf    strings.Builder
}

func (r *renderer) flush() {
	text := strings.TrimSpace(spaceRun.ReplaceAllString(r.buf.String(), " "))
	r.buf.Reset()
	if text != "" {
		r.blocks = append(r.blocks, text)
	}
}

func (r *renderer) renderNode(node *blackfriday.Node, entering bool) blackfriday.WalkStatus {
	switch node.Type {
	case blackfriday.CodeBlock, blackfriday.Code,
		blackfriday.HTMLBlock, blackfriday.HTMLSpan,
		blackfriday.Image, blackfriday.HorizontalRule,
		blackfriday.Table:
		return blackfriday.SkipChildren

	case blackfriday.Heading:
		if entering {
			r.flush()
			r.buf.WriteString(strings.Repeat("#", node.HeadingData.Level))
			r.buf.WriteString(" ")
		} else {
			// A heading with no readable text leaves only its markers behind.
			if strings.TrimLeft(r.buf.String(), "# ") == "" {
				r.buf.Reset()
			}
			r.flush()
		}

	case blackfriday.Paragraph, blackfriday.Item, blackfriday.BlockQuote:
		r.flush()

	case blackfriday.Text:
		r.buf.Write(node.Literal)

	case blackfriday.Softbreak, blackfriday.Hardbreak:
		r.buf.WriteString(" ")
	}
	return blackfriday.GoToNext
}
