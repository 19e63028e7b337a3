// Package rag wires retrieval-augmented generation out of chain stages.
//
// StuffDocumentsChain renders retrieved documents into one {context} variable, calls the
// model and returns the trimmed answer. RetrievalChain retrieves the top k documents for
// a question, stuffs them and reports the question, the documents and the answer together.
package rag
