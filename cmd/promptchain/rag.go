package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/documentloader"
	"github.com/skosovsky/promptchain/rag"
	"github.com/skosovsky/promptchain/textsplitter"
	"github.com/skosovsky/promptchain/vectorstore"
)

type ragOptions struct {
	urls      []string
	question  string
	chunkSize int
	overlap   int
	k         int
	redisAddr string
	allowHTTP bool
	sources   bool
}

func newRAGCmd(get appGetter) *cobra.Command {
	var o ragOptions
	cmd := &cobra.Command{
		Use:   "rag [question]",
		Short: "Answer a question from web pages (load, split, embed, retrieve, stuff)",
		Long: `Answer a question with retrieval-augmented generation:

  1. load every --url and extract its text
  2. split it into overlapping chunks
  3. embed the chunks into an in-memory vector store
  4. retrieve the --k chunks closest to the question
  5. stuff them into the {context} of the "rag_answer" prompt

Embeddings are cached in memory, or in Redis with --redis-addr.`,
		Args: cobra.MaximumNArgs(1),
		RunE: get.run(func(cmd *cobra.Command, a *app, args []string) error {
			if len(args) == 1 {
				o.question = args[0]
			}
			res, err := runRAG(cmd.Context(), a, o)
			if err != nil {
				return err
			}
			a.out.Line(res.Answer)
			if o.sources {
				for i, d := range res.Context {
					a.out.Detail(fmt.Sprintf("source %d", i+1), d.Metadata[documentloader.MetaSource])
				}
			}
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringSliceVar(&o.urls, "url", []string{"https://js.langchain.com/docs/concepts/lcel/"}, "page to load (repeatable)")
	f.StringVar(&o.question, "question", "Should I use LCEL??", "question to answer")
	f.IntVar(&o.chunkSize, "chunk-size", textsplitter.DefaultChunkSize, "maximum chunk length")
	f.IntVar(&o.overlap, "chunk-overlap", textsplitter.DefaultChunkOverlap, "characters shared by neighbouring chunks")
	f.IntVar(&o.k, "k", 3, "chunks to retrieve")
	f.StringVar(&o.redisAddr, "redis-addr", "", "cache embeddings in Redis at host:port")
	f.BoolVar(&o.allowHTTP, "allow-http", false, "allow plain http:// URLs")
	f.BoolVar(&o.sources, "sources", false, "print the source of every retrieved chunk")
	return cmd
}

func runRAG(ctx context.Context, a *app, o ragOptions) (*rag.Result, error) {
	loaderOpts := []documentloader.Option{documentloader.WithLogger(a.logger)}
	if o.allowHTTP {
		loaderOpts = append(loaderOpts, documentloader.WithAllowHTTP())
	}
	docs, err := documentloader.NewWebLoader(loaderOpts...).Load(ctx, o.urls...)
	if err != nil {
		return nil, err
	}
	splitter, err := textsplitter.New(textsplitter.WithChunkSize(o.chunkSize), textsplitter.WithChunkOverlap(o.overlap))
	if err != nil {
		return nil, err
	}
	chunks, err := splitter.SplitDocuments(docs)
	if err != nil {
		return nil, err
	}
	a.logger.Info("documents split", "pages", len(docs), "chunks", len(chunks))

	embedder, closeCache, err := a.cachedEmbedder(o.redisAddr)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeCache() }()
	store, err := vectorstore.FromDocuments(ctx, chunks, embedder, vectorstore.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}

	tpl, err := a.template(ctx, "rag_answer")
	if err != nil {
		return nil, err
	}
	combine, err := rag.NewStuffDocumentsChain(tpl, a.model,
		rag.WithCallOptions(a.optionsFor(tpl)...),
		rag.WithChainOptions(a.chainOptions(ctx)...),
	)
	if err != nil {
		return nil, err
	}
	retrieval, err := rag.NewRetrievalChain(store, combine, rag.WithK(o.k), rag.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	return retrieval.Invoke(ctx, o.question)
}

// cachedEmbedder wraps the provider embedder with a cache keyed by provider and model.
func (a *app) cachedEmbedder(redisAddr string) (promptchain.Embedder, func() error, error) {
	base, err := a.newEmbedder(a.cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}
	var (
		cache   vectorstore.Cache = vectorstore.NewMemoryCache()
		closeFn                   = func() error { return nil }
	)
	if redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		cache = vectorstore.NewRedisCache(client)
		closeFn = client.Close
	}
	ns := a.cfg.Provider + ":" + a.cfg.Model
	return vectorstore.NewCachedEmbedder(base, cache,
		vectorstore.WithNamespace(ns),
		vectorstore.WithCacheLogger(a.logger),
	), closeFn, nil
}
