// MovieGraph - natural-language questions over a movie knowledge graph
//
// MovieGraph answers questions such as "Which time travel movies star Bruce Willis?" against
// a Neo4j or FalkorDB movie graph. A question is embedded, similar movies are found through
// the graph's vector index, an LLM writes a Cypher query from the question, those movies and
// the live schema, the query runs read-only, and the LLM narrates the records.
//
// # Quick Start
//
// Install the command:
//
//	go install github.com/smallnest/moviegraph/cmd/moviegraph@latest
//
// Point it at a graph and a model provider, either in a .env file:
//
//	NEO4J_URI=neo4j://localhost:7687
//	NEO4J_USER=neo4j
//	NEO4J_PASSWORD=secret
//	PROJECT_ID=my-gcp-project
//	LOCATION=us-central1
//
// or in a YAML file passed with --config, then ask:
//
//	moviegraph index ensure
//	moviegraph embed missing
//	moviegraph ask "Which time travel movies star Bruce Willis?"
//	moviegraph recommend "a heist that goes wrong"
//
// Embedding the pipeline in a program:
//
//	cfg, _ := config.Load("")
//	db, _ := ragstore.NewNeo4jStore(ctx, ragstore.Neo4jOptions{URI: cfg.Graph.URI, User: cfg.Graph.User, Password: cfg.Graph.Password})
//	embedder, _ := provider.NewEmbedder(ctx, cfg)
//	llm, _ := provider.NewLanguageModel(ctx, cfg)
//
//	orchestrator, _ := rag.NewOrchestrator(db, embedder, llm, rag.WithConfig(cfg.OrchestratorConfig()))
//	defer orchestrator.Close(ctx)
//	fmt.Println(orchestrator.AnswerQuery(ctx, "Who directed Die Hard?"))
//
// # Packages
//
//   - rag: the query pipeline (retrieval, schema introspection, prompts, sanitizing, orchestration)
//   - rag/store: Neo4j, FalkorDB and in-memory graph stores
//   - graph: the typed state graph the pipeline runs on, with tracing hooks
//   - llms/gemini, llms/openai, llms/provider: model clients and the config-driven factory
//   - catalog: vector index provisioning, embedding backfill, CSV export and import, statistics
//   - store: the query journal and its memory, sqlite, postgres and redis backends
//   - observe: Prometheus metrics and OpenTelemetry spans from pipeline traces
//   - config, log, render: configuration, logging and output formatting
//   - cmd/moviegraph: the command line
//
// # Failure Handling
//
// AnswerQuery and Recommend never return an error. Every failure is reported in the answer
// text, and Orchestrator.Run exposes the failed stage and a typed *rag.Error for callers
// that need it.
package moviegraph // import "github.com/smallnest/moviegraph"
