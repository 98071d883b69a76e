package nodes

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
	"github.com/randalmurphal/chatflow/pkg/chatflow/pool"
	"github.com/randalmurphal/chatflow/pkg/chatflow/selector"
	"github.com/randalmurphal/chatflow/pkg/chatflow/template"
)

// SelfPrefix addresses a node's own gathered inputs from its templates, as
// in {{self.context}}.
const SelfPrefix = "self"

// allowedSelectors builds the allow-list for a template owned by n:
//   - template references to namespaces or to nodes that produced output
//   - the selectors n's mappings read
//   - self.<port> for every mapped port and every gathered input
//
// References to nodes that never ran (a pruned branch, a later node) stay
// outside the list and fail the render.
func allowedSelectors(ctx node.Context, n node.Node, in node.Inputs, tmpl string) []string {
	var allowed []string
	for _, raw := range template.Selectors(tmpl) {
		sel, err := selector.Parse(raw)
		if err != nil || sel.Prefix() == SelfPrefix {
			continue
		}
		if sel.Namespace() != selector.NamespaceNode || ctx.Pool().HasOutput(sel.Prefix(), "") {
			allowed = append(allowed, raw)
		}
	}

	ports := make([]string, 0, len(n.Mappings()))
	for port := range n.Mappings() {
		ports = append(ports, port)
	}
	slices.Sort(ports)
	for _, port := range ports {
		m := n.Mappings()[port]
		if !m.IsConstant() {
			allowed = append(allowed, m.Selector().String())
		}
		allowed = append(allowed, SelfPrefix+"."+port)
	}
	for _, port := range slices.Sorted(maps.Keys(in)) {
		if _, mapped := n.Mappings()[port]; !mapped {
			allowed = append(allowed, SelfPrefix+"."+port)
		}
	}
	return allowed
}

// selfResolver serves self.* from the node's inputs and everything else from
// the run's pool.
func selfResolver(p *pool.Pool, in node.Inputs) template.Resolver {
	self := pool.New(pool.WithLogger(slog.New(slog.DiscardHandler)))
	self.SetOutputs(SelfPrefix, in)
	return template.ResolverFunc(func(sel selector.Selector) (any, bool) {
		if sel.Prefix() == SelfPrefix {
			return self.Resolve(sel)
		}
		return p.Resolve(sel)
	})
}

// renderFor renders tmpl on behalf of n with its allow-list and records the
// render metadata under ctx.Metadata()[scope][node id].
func renderFor(ctx node.Context, n node.Node, in node.Inputs, tmpl, scope string) (*template.Result, error) {
	rd := template.NewRenderer(
		template.WithAllowedSelectors(allowedSelectors(ctx, n, in, tmpl)...),
		template.WithLogger(ctx.Logger()),
	)
	res, err := rd.Render(tmpl, selfResolver(ctx.Pool(), in))
	if err != nil {
		return nil, err
	}

	meta := res.Metadata.Map()
	meta["selectors"] = template.Selectors(tmpl)
	byNode, _ := ctx.Metadata()[scope].(map[string]any)
	if byNode == nil {
		byNode = make(map[string]any)
		ctx.Metadata()[scope] = byNode
	}
	byNode[n.ID()] = meta
	return res, nil
}
