// Package rag implements the movie GraphRAG query-answering pipeline.
//
// A question flows through a fixed sequence of steps: the question is embedded, similar
// movies are retrieved from the graph's vector index, the graph schema is introspected, an
// LLM turns question, candidates and schema into a Cypher query, the query is cleaned up and
// executed, and the LLM narrates the records back to the user.
//
// # Components
//
//   - VectorRetriever: embeds text and searches the vector index
//   - OntologyIntrospector: renders the live graph schema as prompt text
//   - QueryComposer: builds the prompts, pure and deterministic
//   - Sanitizer: strips Markdown fences from generated queries
//   - Orchestrator: runs the steps as a compiled graph.StateGraph
//
// The pipeline depends only on the Embedder, LanguageModel and GraphStore interfaces. Concrete
// stores live in rag/store, concrete models in the llms packages, and langchaingo models and
// embedders are plugged in through LangChainLLM and LangChainEmbedder.
//
// # Quick Start
//
//	graphStore, _ := store.NewNeo4jStore(ctx, store.Neo4jOptions{URI: uri, User: user, Password: password})
//	defer graphStore.Close(ctx)
//
//	model, _ := gemini.New(ctx, gemini.WithProject(project), gemini.WithLocation(location))
//	embedder, _ := embeddings.NewEmbedder(model)
//
//	orchestrator, _ := rag.NewOrchestrator(
//		graphStore,
//		rag.NewLangChainEmbedder(embedder, 768),
//		rag.NewLangChainLLM(model),
//	)
//	answer := orchestrator.AnswerQuery(ctx, "Which time travel movies star Bruce Willis?")
//
// AnswerQuery never returns an error: failures are reported inside the answer text.
package rag
