package segment

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeDropsUnreadableBlocks(t *testing.T) {
	md := strings.Join([]string{
		"# Title",
		"",
		"Some *emphasis* and a [link](http://example.com) here.",
		"",
		"![diagram](img.png)",
		"",
		"```go",
		"fmt.Println(\"hi\")",
		"```",
		"",
		"---",
		"",
		"| a | b |",
		"|---|---|",
		"| 1 | 2 |",
		"",
		"<div>raw html</div>",
		"",
		"Energy is $E=mc^2$ roughly.",
		"",
		"$$",
		"\\int x dx",
		"$$",
	}, "\n")

	out := Sanitize(md)
	assert.True(t, strings.HasPrefix(out, "# Title\n\n"), out)
	assert.Contains(t, out, "Some emphasis and a link here.")
	assert.Contains(t, out, "Energy is roughly.")
	for _, gone := range []string{"Println", "diagram", "img.png", "raw html", "mc^2", "int x", "| a", "---"} {
		assert.NotContains(t, out, gone)
	}
}

func TestSanitizeInlineCodeAndLists(t *testing.T) {
	out := Sanitize("Run `make` now.\n\n- first item\n- second item\n")
	assert.Contains(t, out, "Run now.")
	assert.Contains(t, out, "first item")
	assert.Contains(t, out, "second item")
	assert.NotContains(t, out, "make")
}

func TestSplitSections(t *testing.T) {
	sections := SplitSections("Intro.\n\n# A\n\nBody A.\n\n## B\n\n# C\n\nBody C.")
	require.Len(t, sections, 4)

	assert.Equal(t, Section{Title: "", Depth: 0, Body: "Intro.", Index: 0}, sections[0])
	assert.Equal(t, Section{Title: "A", Depth: 1, Body: "Body A.", Index: 1}, sections[1])
	assert.Equal(t, Section{Title: "B", Depth: 2, Body: "", Index: 2}, sections[2])
	assert.Equal(t, Section{Title: "C", Depth: 1, Body: "Body C.", Index: 3}, sections[3])
}

func TestChunkSectionsHeadingsAndIndices(t *testing.T) {
	chunks := ChunkSections(SplitSections("Intro.\n\n# A\n\nBody A.\n\n## B\n\n# C\n\nBody C."), Options{})
	require.Len(t, chunks, 4)

	want := []string{"Intro.", "# A\n\nBody A.", "## B", "# C\n\nBody C."}
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, want[i], c.Text)
	}
	assert.Equal(t, "B", chunks[2].SectionTitle)
	assert.Equal(t, 2, chunks[2].HeadingDepth)
	assert.Equal(t, 3, chunks[3].SectionIndex)
}

func TestChunkSectionsBatchesToTarget(t *testing.T) {
	short := strings.Repeat("s", 60)
	long := strings.Repeat("l", 120)

	batched := ChunkSections([]Section{{Body: short + "\n\n" + short + "\n\n" + short}}, Options{TargetSize: 200})
	require.Len(t, batched, 1)
	assert.Equal(t, 184, utf8.RuneCountInString(batched[0].Text))

	split := ChunkSections([]Section{{Body: long + "\n\n" + long + "\n\n" + long}}, Options{TargetSize: 200})
	require.Len(t, split, 3)
	for i, c := range split {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, long, c.Text)
	}
}

func TestHeadingPrefixOnlyOnFirstChunk(t *testing.T) {
	long := strings.Repeat("x", 150)
	chunks := ChunkSections([]Section{{Title: "Part", Depth: 2, Body: long + "\n\n" + long}}, Options{TargetSize: 200})
	require.Len(t, chunks, 2)
	assert.Equal(t, "## Part\n\n"+long, chunks[0].Text)
	assert.Equal(t, long, chunks[1].Text)
	assert.Equal(t, "Part", chunks[1].SectionTitle)
}

func TestOversizeParagraphSplitsAtSentences(t *testing.T) {
	var sentences []string
	for i := range 30 {
		sentences = append(sentences, "This is sentence number "+strings.Repeat("n", i%5+1)+".")
	}
	paragraph := strings.Join(sentences, " ")

	chunks := ChunkSections([]Section{{Body: paragraph}}, Options{TargetSize: 200, HardCap: 200})
	require.Greater(t, len(chunks), 1)

	var texts []string
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 200)
		assert.True(t, strings.HasSuffix(c.Text, "."), c.Text)
		texts = append(texts, c.Text)
	}
	assert.Equal(t, paragraph, strings.Join(texts, " "))
}

func TestOversizeSentenceSplitsAtWords(t *testing.T) {
	sentence := strings.TrimSpace(strings.Repeat("word ", 100))
	pieces := splitOversize(sentence, 200, 200)
	require.Greater(t, len(pieces), 1)
	for _, p := range pieces {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), 200)
	}
	assert.Equal(t, sentence, strings.Join(pieces, " "))

	word := strings.Repeat("é", 450)
	pieces = splitWords(word, 200)
	require.Len(t, pieces, 3)
	assert.Equal(t, 200, utf8.RuneCountInString(pieces[0]))
	assert.Equal(t, 200, utf8.RuneCountInString(pieces[1]))
	assert.Equal(t, 50, utf8.RuneCountInString(pieces[2]))
}

func TestTitledOversizeParagraphStaysUnderCap(t *testing.T) {
	var sentences []string
	for i := range 120 {
		sentences = append(sentences, "Sentence "+strings.Repeat("z", i%7+3)+" keeps the reader going.")
	}
	paragraph := strings.Join(sentences, " ")
	require.Greater(t, utf8.RuneCountInString(paragraph), 4000)

	md := "# Introduction to the subject\n\n" + paragraph + "\n\nA closing note."
	chunks := NewSplitter(Options{}).Segment(md)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "# Introduction to the subject\n\n"))
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 4000, "chunk %d", c.Index)
	}
}

func TestTitledBatchCountsHeading(t *testing.T) {
	body := strings.Repeat("b", 195)
	chunks := ChunkSections([]Section{{Title: "Part", Depth: 1, Body: body}}, Options{TargetSize: 200, HardCap: 200})
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 200, c.Text)
	}
	assert.True(t, strings.HasPrefix(chunks[0].Text, "# Part\n\n"))
	var joined []string
	for _, c := range chunks {
		joined = append(joined, strings.TrimPrefix(c.Text, "# Part\n\n"))
	}
	assert.Equal(t, body, strings.Join(joined, ""))
}

func TestLongHeadingStandsAlone(t *testing.T) {
	title := strings.Repeat("t", 150)
	chunks := ChunkSections([]Section{{Title: title, Depth: 1, Body: "Short body."}}, Options{TargetSize: 200, HardCap: 200})
	require.Len(t, chunks, 2)
	assert.Equal(t, "# "+title, chunks[0].Text)
	assert.Equal(t, "Short body.", chunks[1].Text)
	assert.Equal(t, title, chunks[1].SectionTitle)
}

func TestLimits(t *testing.T) {
	cases := []struct {
		opts           Options
		target, hardCap int
	}{
		{Options{}, 1400, 4000},
		{Options{TargetSize: 50}, 200, 4000},
		{Options{TargetSize: 5000}, 2000, 4000},
		{Options{HardCap: 100}, 1400, 1400},
		{Options{TargetSize: 800, HardCap: 1000}, 800, 1000},
	}
	for _, tc := range cases {
		target, hardCap := tc.opts.limits()
		assert.Equal(t, tc.target, target, "%+v", tc.opts)
		assert.Equal(t, tc.hardCap, hardCap, "%+v", tc.opts)
	}
}

func TestSplitterSegment(t *testing.T) {
	md := "# Guide\n\nWelcome to the guide.\n\n## Setup\n\nInstall the tool with `brew`.\n\n## Empty\n"
	chunks := NewSplitter(Options{}).Segment(md)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
	assert.Equal(t, "# Guide\n\nWelcome to the guide.", chunks[0].Text)
	assert.Equal(t, "## Setup\n\nInstall the tool with .", chunks[1].Text)
	assert.Equal(t, "## Empty", chunks[2].Text)
	assert.Equal(t, 2, chunks[2].HeadingDepth)
}

func TestSegmentEmptyDocument(t *testing.T) {
	assert.Empty(t, NewSplitter(Options{}).Segment("```\nonly code\n```"))
}
