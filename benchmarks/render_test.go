package benchmarks

import (
	"testing"

	"github.com/randalmurphal/chatflow/pkg/chatflow/pool"
	"github.com/randalmurphal/chatflow/pkg/chatflow/selector"
	"github.com/randalmurphal/chatflow/pkg/chatflow/template"
)

func benchPool() *pool.Pool {
	p := pool.New(
		pool.WithLogger(discard),
		pool.WithConversation(map[string]any{"summary": "earlier turns"}),
		pool.WithSystem(map[string]any{"session_id": "bench"}),
	)
	p.SetOutputs("retrieve", map[string]any{
		"documents": []any{
			map[string]any{"title": "a", "score": 0.9},
			map[string]any{"title": "b", "score": 0.7},
		},
		"query": "how do I reset my password?",
	})
	return p
}

// BenchmarkResolve_NestedPath resolves a path into a list of objects.
func BenchmarkResolve_NestedPath(b *testing.B) {
	p := benchPool()
	sel := selector.MustParse("retrieve.documents.1.title")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.Resolve(sel)
	}
}

// BenchmarkRender renders a template with three references.
func BenchmarkRender(b *testing.B) {
	p := benchPool()
	r := template.NewRenderer(template.WithLogger(discard))
	tmpl := "Q: {{#retrieve.query#}}\nContext: {{retrieve.documents}}\nSummary: {{conversation.summary}}"
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = r.Render(tmpl, p)
	}
}

// BenchmarkRender_AllowList renders with an allow-list in force.
func BenchmarkRender_AllowList(b *testing.B) {
	p := benchPool()
	r := template.NewRenderer(
		template.WithLogger(discard),
		template.WithAllowedSelectors("retrieve.query", "sys.session_id"),
	)
	tmpl := "{{retrieve.query}} ({{sys.session_id}})"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = r.Render(tmpl, p)
	}
}
