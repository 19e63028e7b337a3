// Package vectorstore keeps embedded documents in memory and answers similarity queries.
//
// MemoryStore embeds documents through a promptchain.Embedder and ranks them by cosine
// similarity; it implements promptchain.Retriever. CachedEmbedder puts a cache (in-memory
// or Redis) in front of an embedder so repeated texts are embedded once.
package vectorstore
