package chunker

import (
	"strings"
	"testing"
)

func TestChunkMarkdownSplitsAtHeadings(t *testing.T) {
	content := `# Getting Started

This is the introduction section with enough text to pass the minimum size
threshold for a chunk. It explains what the library does in general terms.

## Installation

Install the package with your package manager of choice. This section also
needs to be long enough to survive the minimum chunk size filter applied.

## Usage

Import the library and call the main entry point. Again this paragraph is
padded out so the section clears the minimum size requirement comfortably.
`

	c := New()
	chunks := c.ChunkMarkdown(content, "https://example.com/docs", "mylib")

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	if chunks[0].HeadingPath != "Getting Started" {
		t.Errorf("chunk 0 heading path = %q", chunks[0].HeadingPath)
	}
	if chunks[1].HeadingPath != "Getting Started > Installation" {
		t.Errorf("chunk 1 heading path = %q", chunks[1].HeadingPath)
	}
	if chunks[2].HeadingPath != "Getting Started > Usage" {
		t.Errorf("chunk 2 heading path = %q", chunks[2].HeadingPath)
	}

	for i, ch := range chunks {
		if ch.Title != "Getting Started" {
			t.Errorf("chunk %d title = %q, want Getting Started", i, ch.Title)
		}
		if ch.SourceURL != "https://example.com/docs" {
			t.Errorf("chunk %d source URL = %q", i, ch.SourceURL)
		}
		if ch.LibraryKey != "mylib" {
			t.Errorf("chunk %d library key = %q", i, ch.LibraryKey)
		}
		var zero [32]byte
		if ch.ContentHash == zero {
			t.Errorf("chunk %d has no content hash", i)
		}
	}
}

func TestChunkMarkdownIgnoresHeadingsInCodeFences(t *testing.T) {
	content := `# Reference

Some introductory prose that is long enough to clear the minimum chunk size
filter and give the section a bit of body around the code example below.

` + "```markdown\n# Not a real heading\n## Also not a heading\n```" + `

Closing prose after the code fence to round out the single section nicely.
`

	c := New()
	chunks := c.ChunkMarkdown(content, "", "lib")

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Content, "# Not a real heading") {
		t.Error("code fence content missing from chunk")
	}
}

func TestChunkMarkdownSplitsOversizedWithOverlap(t *testing.T) {
	paragraph := strings.Repeat("word ", 60) // ~300 chars
	var sb strings.Builder
	sb.WriteString("# Big Section\n\n")
	for i := 0; i < 10; i++ {
		sb.WriteString(paragraph)
		sb.WriteString("\n\n")
	}

	c := NewWithLimits(800, 100, 150)
	chunks := c.ChunkMarkdown(sb.String(), "", "lib")

	if len(chunks) < 3 {
		t.Fatalf("expected oversized section to split, got %d chunks", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch.Content) > 800+150+2 {
			t.Errorf("chunk %d exceeds size limit: %d chars", i, len(ch.Content))
		}
	}

	// Consecutive chunks share overlapping text
	tail := chunks[0].Content[len(chunks[0].Content)-50:]
	if !strings.Contains(chunks[1].Content, strings.TrimSpace(tail[strings.IndexAny(tail, " \n")+1:])) {
		t.Error("second chunk does not carry overlap from the first")
	}
}

func TestChunkMarkdownDropsTinyFragments(t *testing.T) {
	content := "# A\n\nshort\n\n## B\n\n" + strings.Repeat("long enough content here ", 10)

	c := New()
	chunks := c.ChunkMarkdown(content, "", "lib")

	for _, ch := range chunks {
		if len(ch.Content) < DefaultMinChunkSize {
			t.Errorf("chunk below minimum size survived: %q", ch.Content)
		}
	}
}

func TestIsTOCOnly(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{
			name:    "pure link list",
			content: "# Docs\n- [Intro](intro.md)\n- [API](api.md)\n- [FAQ](faq.md)",
			want:    true,
		},
		{
			name:    "real content",
			content: "# Docs\nThis library does things.\nHere is how you install it.\n- [API](api.md)",
			want:    false,
		},
		{
			name:    "empty",
			content: "",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTOCOnly(tt.content); got != tt.want {
				t.Errorf("IsTOCOnly() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQualityScore(t *testing.T) {
	codeChunk := "## Example\n\nUse the API like this:\n\n```go\nfunc main() { fmt.Println(Run()) }\n```\n\n" +
		strings.Repeat("explanatory prose about the function call ", 10)
	linkChunk := "- [a](a.md)\n- [b](b.md)\n- [c](c.md)\n- [d](d.md)"

	if QualityScore(codeChunk) <= QualityScore(linkChunk) {
		t.Errorf("code chunk (%v) should outscore link farm (%v)",
			QualityScore(codeChunk), QualityScore(linkChunk))
	}

	if s := QualityScore(codeChunk); s < 0 || s > 1 {
		t.Errorf("score out of range: %v", s)
	}
}
