package store

import (
	"sort"
	"strings"

	"github.com/smallnest/moviegraph/rag"
)

// quoteIdentifier escapes a label, relationship type or property name for Cypher.
func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// parameterHeader renders params as the CYPHER prefix FalkorDB uses for query parameters.
// Keys are sorted so the query text is stable.
func parameterHeader(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("CYPHER")
	for _, k := range keys {
		sb.WriteByte(' ')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(rag.ValueOf(params[k]).Literal())
	}
	sb.WriteByte(' ')
	return sb.String()
}

func float64s(vector []float32) []float64 {
	out := make([]float64, len(vector))
	for i, f := range vector {
		out[i] = float64(f)
	}
	return out
}
