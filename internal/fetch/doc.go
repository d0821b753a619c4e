// Package fetch is the content-extraction collaborator: it turns a URL into
// cleaned text content and discovered sub-links.
//
// The HTTP implementation does no JavaScript rendering. Documentation that
// is served as HTML is converted to markdown-ish text (headings, lists, and
// fenced code preserved) so the chunker can split it; markdown and plain
// text pass through. Anti-bot interstitial pages and empty results are
// reported as types.ErrFetchFailed so the caller can fall through to a
// different source.
//
// RankLinks orders discovered links by query-token overlap, letting a
// bounded crawl spend its page budget on the most relevant pages first.
package fetch
