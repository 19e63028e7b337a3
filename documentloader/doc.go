// Package documentloader downloads web pages and turns them into promptchain.Document
// values. HTML is reduced to the visible text of the body; plain text and other text/*
// bodies are kept as-is.
//
//	loader := documentloader.NewWebLoader()
//	docs, err := loader.Load(ctx, "https://go.dev/doc/effective_go")
package documentloader
