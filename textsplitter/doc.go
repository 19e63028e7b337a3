// Package textsplitter cuts long documents into overlapping chunks for embedding.
//
// RecursiveCharacter tries a list of separators in order (paragraphs, lines, words,
// characters) and only falls back to a finer separator for pieces that are still too
// long. Adjacent pieces are merged up to ChunkSize, and each chunk repeats up to
// ChunkOverlap of the previous one. Lengths are measured with a TokenCounter; the
// default counts runes.
package textsplitter
