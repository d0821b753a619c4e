package chunker

import (
	"regexp"
	"strings"

	"github.com/n24q02m/wet-mcp/pkg/types"
)

const (
	// DefaultMaxChunkSize is the target maximum chunk size in characters
	DefaultMaxChunkSize = 1500

	// DefaultMinChunkSize drops fragments too small to be useful hits
	DefaultMinChunkSize = 100

	// DefaultOverlap is the number of trailing characters carried into the
	// next chunk when a long section is split, preserving cross-boundary
	// context
	DefaultOverlap = 200
)

var (
	headingRe  = regexp.MustCompile(`^(#{1,4})\s+(.+?)\s*#*\s*$`)
	linkLineRe = regexp.MustCompile(`^\s*[-*]?\s*\[[^\]]+\]\([^)]+\)\s*$`)
)

// Chunker splits cleaned markdown into searchable document chunks
type Chunker struct {
	maxSize int
	minSize int
	overlap int
}

// New creates a Chunker with default limits
func New() *Chunker {
	return NewWithLimits(DefaultMaxChunkSize, DefaultMinChunkSize, DefaultOverlap)
}

// NewWithLimits creates a Chunker with explicit size limits
func NewWithLimits(maxSize, minSize, overlap int) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	if minSize < 0 {
		minSize = DefaultMinChunkSize
	}
	if overlap < 0 || overlap >= maxSize {
		overlap = DefaultOverlap
	}
	return &Chunker{maxSize: maxSize, minSize: minSize, overlap: overlap}
}

// section is an accumulating run of lines under one heading path
type section struct {
	path  []string
	lines []string
}

func (s *section) size() int {
	n := 0
	for _, l := range s.lines {
		n += len(l) + 1
	}
	return n
}

// ChunkMarkdown splits markdown content into chunks at heading boundaries.
// New sections open at h1/h2; a running section also flushes at h3/h4 once
// it has grown past half the size limit. Sections larger than the limit are
// split at paragraph boundaries with fenced code blocks kept atomic.
func (c *Chunker) ChunkMarkdown(content, sourceURL, libraryKey string) []*types.DocumentChunk {
	lines := strings.Split(content, "\n")

	var sections []section
	current := section{}
	// heading text per level, h1 at index 0
	var headings [4]string
	inFence := false

	flush := func() {
		if len(current.lines) > 0 {
			sections = append(sections, current)
		}
		current = section{path: headingPath(headings)}
	}

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			current.lines = append(current.lines, line)
			continue
		}
		if inFence {
			current.lines = append(current.lines, line)
			continue
		}

		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			current.lines = append(current.lines, line)
			continue
		}

		level := len(m[1])
		text := strings.TrimSpace(m[2])

		switch {
		case level <= 2:
			flush()
		case current.size() > c.maxSize/2:
			// deep heading inside an already-large section
			flush()
		}

		headings[level-1] = text
		for i := level; i < len(headings); i++ {
			headings[i] = ""
		}
		current.path = headingPath(headings)
		current.lines = append(current.lines, line)
	}
	flush()

	var chunks []*types.DocumentChunk
	for _, sec := range sections {
		text := strings.TrimSpace(strings.Join(sec.lines, "\n"))
		if len(text) < c.minSize {
			continue
		}

		title := ""
		if len(sec.path) > 0 {
			title = sec.path[0]
		}
		path := strings.Join(sec.path, " > ")

		for _, piece := range c.splitLong(text) {
			piece = strings.TrimSpace(piece)
			if len(piece) < c.minSize {
				continue
			}
			chunk := &types.DocumentChunk{
				LibraryKey:  libraryKey,
				Title:       title,
				HeadingPath: path,
				Content:     piece,
				SourceURL:   sourceURL,
				ChunkIndex:  len(chunks),
			}
			chunk.ComputeContentHash()
			chunk.ComputeTokenCount()
			chunk.QualityScore = QualityScore(piece)
			chunks = append(chunks, chunk)
		}
	}

	return chunks
}

// splitLong splits text exceeding the size limit at paragraph boundaries.
// Fenced code blocks count as single paragraphs. Each continuation chunk
// starts with the tail of the previous one.
func (c *Chunker) splitLong(text string) []string {
	if len(text) <= c.maxSize {
		return []string{text}
	}

	paragraphs := splitParagraphs(text)

	var pieces []string
	var buf strings.Builder
	for _, para := range paragraphs {
		if buf.Len() > 0 && buf.Len()+len(para)+2 > c.maxSize {
			piece := buf.String()
			pieces = append(pieces, piece)
			buf.Reset()
			if c.overlap > 0 {
				buf.WriteString(overlapTail(piece, c.overlap))
				buf.WriteString("\n\n")
			}
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
	}
	if buf.Len() > 0 {
		pieces = append(pieces, buf.String())
	}
	return pieces
}

// splitParagraphs splits on blank lines but keeps fenced code blocks whole
func splitParagraphs(text string) []string {
	lines := strings.Split(text, "\n")

	var paragraphs []string
	var buf []string
	inFence := false

	flush := func() {
		if len(buf) > 0 {
			paragraphs = append(paragraphs, strings.Join(buf, "\n"))
			buf = nil
		}
	}

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			buf = append(buf, line)
			if !inFence {
				flush()
			}
			continue
		}
		if inFence {
			buf = append(buf, line)
			continue
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		buf = append(buf, line)
	}
	flush()

	return paragraphs
}

// overlapTail returns the last n characters of text, extended back to the
// nearest word boundary so the carried context starts cleanly
func overlapTail(text string, n int) string {
	if len(text) <= n {
		return text
	}
	tail := text[len(text)-n:]
	if idx := strings.IndexAny(tail, " \n\t"); idx >= 0 && idx < len(tail)-1 {
		tail = tail[idx+1:]
	}
	return tail
}

func headingPath(headings [4]string) []string {
	var path []string
	for _, h := range headings {
		if h == "" {
			break
		}
		path = append(path, h)
	}
	return path
}

// IsTOCOnly reports whether markdown content is mostly a table of links
// (more than half of its non-empty lines are markdown link lines). Used to
// reject llms.txt files that index docs instead of containing them.
func IsTOCOnly(content string) bool {
	total := 0
	links := 0
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		total++
		if linkLineRe.MatchString(trimmed) {
			links++
		}
	}
	if total == 0 {
		return true
	}
	return float64(links)/float64(total) > 0.5
}

// QualityScore estimates how useful a chunk is as a search hit, in [0,1].
// Code examples and API definition patterns score up, link-dominated and
// very short content scores down.
func QualityScore(content string) float64 {
	score := 0.0

	if strings.Contains(content, "```") {
		score += 3
	}
	for _, pattern := range []string{"func ", "def ", "class ", "function ", "const ", "=> "} {
		if strings.Contains(content, pattern) {
			score += 1
			break
		}
	}
	if strings.Contains(content, "(") && strings.Contains(content, ")") {
		score += 1
	}

	length := len(content)
	switch {
	case length >= 400 && length <= 1200:
		score += 3
	case length >= 200:
		score += 2
	case length >= 100:
		score += 1
	}

	// Penalize link farms
	lines := strings.Split(content, "\n")
	linkLines := 0
	nonEmpty := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		nonEmpty++
		if linkLineRe.MatchString(trimmed) {
			linkLines++
		}
	}
	if nonEmpty > 0 && float64(linkLines)/float64(nonEmpty) > 0.5 {
		score -= 3
	}

	score /= 8
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
