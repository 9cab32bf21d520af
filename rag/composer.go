package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxResultChars bounds the serialized results embedded in a summary prompt.
const MaxResultChars = 4000

const noResultsText = "No results found."

const noQueryText = "No query available"

const queryGenerationTemplate = `
You are an assistant working with a Neo4j movie database.
You must translate a user's natural language question into a precise Cypher query.

Use the ontology, context, and user query provided below to guide your response.
Each section is clearly delimited to help you parse and use the input properly.

<<<ONTOLOGY>>>
%s
<<<END ONTOLOGY>>>

<<<USER QUESTION>>>
%s
<<<END USER QUESTION>>>

<<<VECTOR SEARCH CONTEXT>>>
%s
<<<END VECTOR SEARCH CONTEXT>>>

Your task is to generate a valid Cypher query that accurately answers the user's question using the ontology and relevant context.

IMPORTANT GUIDELINES FOR CYPHER QUERIES:
1. Begin with Cypher clauses like MATCH, OPTIONAL MATCH, CREATE, MERGE, UNWIND, CALL, WITH, RETURN.
2. DO NOT escape characters (\n, \t, etc.) or include markdown formatting like triple backticks (` + "```" + ` or ` + "```cypher" + `).
3. Only use properties, labels, and relationships defined in the ontology.
4. Apply appropriate WHERE clauses to filter results according to the user's intent.
5. Use the context to disambiguate entity types or relationships, especially where names or roles are similar.
6. Ensure the RETURN clause clearly specifies what to return (e.g., title, overview, release date).
7. Structure the query for readability and correctness - do not skip clauses.
8. If unsure or information is missing, generate the best-effort query based on context, and make assumptions explicit in the Cypher query as comments if needed (optional).

OUTPUT FORMAT:
Only return the Cypher query - no explanation, formatting, markdown, or prose. Just the query itself.
`

const summaryTemplate = `
You are a friendly movie assistant helping users find films that match their preferences.

<<<USER QUESTION>>>
%s
<<<END USER QUESTION>>>

<<<CYPHER QUERY EXECUTED>>>
%s
<<<END CYPHER QUERY>>>

<<<RESULT COUNT>>>
%d
<<<END RESULT COUNT>>>

<<<FORMATTED RESULTS (TRUNCATED TO 4000 CHAR IF TOO LONG)>>>
%s
<<<END FORMATTED RESULTS>>>

Your task:
1. Summarize the top 3-5 movie results as if you're enthusiastically recommending them to a friend at a movie club.
2. For each movie, include:
   - Title (required)
   - A complete but concise overview (required)
   - Optional helpful metadata like release year, genre, or standout elements (e.g., actor, theme, director)
3. Relate each recommendation to the user's question (e.g., genre, actor mentioned, theme requested).
4. Make it personal, natural, and engaging - like you've seen these movies and are excited to share them.

IF RESULTS = 0:
- Offer thoughtful reasons why (e.g., query too broad/narrow, data gap)
- Provide 1-2 helpful tips to refine the query for better results next time
- Keep the tone helpful and constructive

IMPORTANT:
- DO NOT list raw data.
- DO NOT repeat the Cypher query.
- DO NOT just copy & paste the input - transform the results into meaningful narrative.

Your response should be friendly, clear, and insightful - like a real conversation between movie lovers.
`

const recommendationTemplate = `
The user asked: "%s"

Based on their query, I found these movies (with semantic similarity scores):
%s

Create a friendly and helpful response that:
1. Acknowledges their request
2. Explains why these recommendations match their request (referring to plot elements, themes, etc.)
3. Presents the movies in a clear, readable format with titles, release years, and brief descriptions
4. Asks if they'd like more specific recommendations

Important note: Don't simply list out all the movies with bullet points or numbers. Format it as a conversational response while still highlighting the key information about each movie.
`

// QueryComposer builds the LLM prompts. All methods are pure: the same inputs always give
// byte-identical output.
type QueryComposer struct {
	// MaxResultChars is the number of characters of serialized results kept in summary prompts.
	MaxResultChars int
}

// NewQueryComposer returns a composer truncating results to MaxResultChars.
func NewQueryComposer() QueryComposer {
	return QueryComposer{MaxResultChars: MaxResultChars}
}

// QueryGenerationPrompt asks the LLM for a single Cypher query answering userQuery.
func (c QueryComposer) QueryGenerationPrompt(userQuery, vectorContext, ontology string) string {
	return fmt.Sprintf(queryGenerationTemplate, ontology, userQuery, vectorContext)
}

// SummaryPrompt asks the LLM to narrate the records returned by generatedQuery.
func (c QueryComposer) SummaryPrompt(userQuery, generatedQuery string, resultCount int, serializedResults string) string {
	results := noResultsText
	if resultCount > 0 {
		results = Truncate(serializedResults, c.maxChars())
	}
	if strings.TrimSpace(generatedQuery) == "" {
		generatedQuery = noQueryText
	}
	return fmt.Sprintf(summaryTemplate, userQuery, generatedQuery, resultCount, results)
}

// RecommendationPrompt asks the LLM for a conversational recommendation of candidates.
func (c QueryComposer) RecommendationPrompt(userQuery string, candidates []Candidate) string {
	entries := make([]string, len(candidates))
	for i, candidate := range candidates {
		entries[i] = fmt.Sprintf("Movie: %s\nPlot: %s\nReleased: %s\nTagline: %s\nSimilarity Score: %.4f",
			candidate.Title, candidate.Plot, candidate.Released, candidate.Tagline, candidate.Score)
	}
	return fmt.Sprintf(recommendationTemplate, userQuery, strings.Join(entries, "\n"))
}

// VectorContext renders candidates as the vector search section of the generation prompt.
func (c QueryComposer) VectorContext(candidates []Candidate) string {
	var sb strings.Builder
	sb.WriteString("Information from vector search:\n")
	for i, candidate := range candidates {
		fmt.Fprintf(&sb, "[Result %d] Title: %s\nPlot: %s\n\n", i+1, candidate.Title, candidate.Plot)
	}
	return sb.String()
}

// SerializeRecords renders a result set deterministically.
func (c QueryComposer) SerializeRecords(records []Record) string {
	parts := make([]string, len(records))
	for i, record := range records {
		parts[i] = record.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (c QueryComposer) maxChars() int {
	if c.MaxResultChars > 0 {
		return c.MaxResultChars
	}
	return MaxResultChars
}

// Truncate returns the first n characters of s.
func Truncate(s string, n int) string {
	if n < 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
