// Package chunker splits cleaned documentation markdown into searchable
// chunks for embedding and retrieval.
//
// Chunks open at h1/h2 headings; a section that has already grown past half
// the size limit also flushes at h3/h4. Oversized sections are split at
// paragraph boundaries with fenced code blocks kept atomic, and each
// continuation chunk carries the tail of its predecessor so phrases spanning
// a boundary stay findable.
//
//	c := chunker.New()
//	chunks := c.ChunkMarkdown(markdown, pageURL, "react")
//
// Every chunk carries a heading breadcrumb ("Guide > Hooks > useState"), a
// content hash for deduplication, and a quality score used as a low-weight
// fusion signal at search time.
package chunker
