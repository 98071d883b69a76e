package nodes

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/randalmurphal/chatflow/pkg/chatflow/llm"
	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
	"github.com/randalmurphal/chatflow/pkg/chatflow/service"
)

// LLM node defaults.
const (
	DefaultLLMProvider    = "openai"
	DefaultLLMModel       = "gpt-4"
	DefaultLLMTemperature = 0.7
	DefaultLLMMaxTokens   = 4000

	// DefaultPrompt is used when no prompt_template is configured.
	DefaultPrompt = "{context}\n\nQuestion: {query}\nAnswer:"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// LLM generates a reply with the llm service.
//
// Data: model, provider, temperature, max_tokens, prompt_template.
//
// A prompt_template is rendered like an answer template, so it can read
// {{self.query}}, {{self.context}} and any selector the node is wired to.
// Without one, DefaultPrompt is filled in with the query and context inputs.
// When a stream sink is registered under service.Stream the reply is
// streamed to it as it is generated.
type LLM struct {
	node.Base
}

var (
	_ node.Node             = (*LLM)(nil)
	_ node.ResponseProducer = (*LLM)(nil)
	_ node.TokenReporter    = (*LLM)(nil)
)

// NewLLM is the llm node factory.
func NewLLM(spec node.Spec) (node.Node, error) {
	return &LLM{Base: node.NewBase(spec)}, nil
}

// ResponsePort implements node.ResponseProducer.
func (l *LLM) ResponsePort() string { return "response" }

// TokensUsed implements node.TokenReporter.
func (l *LLM) TokensUsed(out node.Outputs) int {
	n, _ := out["tokens"].(int)
	return n
}

// Ports implements node.Node.
func (l *LLM) Ports() node.PortSchema {
	return node.PortSchema{
		Inputs: []node.Port{
			{Name: "query", Kind: node.KindString, Required: true},
			{Name: "context", Kind: node.KindString},
			{Name: "system_prompt", Kind: node.KindString},
		},
		Outputs: []node.Port{
			{Name: "response", Kind: node.KindString},
			{Name: "tokens", Kind: node.KindNumber},
			{Name: "model", Kind: node.KindString},
		},
	}
}

// Validate checks the query mapping and the sampling parameters.
func (l *LLM) Validate() error {
	if _, ok := l.Mappings()["query"]; !ok {
		return invalidConfig("llm node must map query")
	}
	if t := l.Config().Float("temperature", DefaultLLMTemperature); t < 0 || t > 2 {
		return invalidConfig("temperature %v outside [0, 2]", t)
	}
	if n := l.Config().Int("max_tokens", DefaultLLMMaxTokens); n < 1 {
		return invalidConfig("max_tokens must be positive, got %d", n)
	}
	return nil
}

// Execute implements node.Node.
func (l *LLM) Execute(ctx node.Context, in node.Inputs) (node.Outputs, error) {
	query := in.String("query")
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("llm %s: empty query", l.ID())
	}
	if in.String("context") == "" {
		ctx.Logger().Warn("llm context is empty")
	}

	gen, err := service.Lookup[llm.Generator](ctx.Services(), service.LLM)
	if err != nil {
		return nil, err
	}

	prompt, err := l.prompt(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	cfg := l.Config()
	req := llm.UserPrompt(prompt)
	req.SystemPrompt = in.String("system_prompt")
	req.Provider = cfg.String("provider", DefaultLLMProvider)
	req.Model = cfg.String("model", DefaultLLMModel)
	req.Temperature = cfg.Float("temperature", DefaultLLMTemperature)
	req.MaxTokens = cfg.Int("max_tokens", DefaultLLMMaxTokens)

	var resp *llm.Response
	if sink, ok := service.Optional[llm.StreamSink](ctx.Services(), service.Stream); ok {
		resp, err = llm.StreamTo(ctx, gen, req, func(text string) error {
			return sink.Emit(context.WithoutCancel(ctx), ctx.NodeID(), text)
		})
	} else {
		resp, err = gen.Complete(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	if strings.TrimSpace(resp.Content) == "" {
		ctx.Logger().Warn("llm returned an empty response", "model", req.Model, "prompt_length", len(prompt))
	}
	model := resp.Model
	if model == "" {
		model = req.Model
	}
	ctx.Logger().Info("llm response generated", "model", model, "tokens", resp.Usage.TotalTokens)
	return node.Outputs{
		"response": resp.Content,
		"tokens":   resp.Usage.TotalTokens,
		"model":    model,
	}, nil
}

func (l *LLM) prompt(ctx node.Context, in node.Inputs) (string, error) {
	if tmpl := strings.TrimSpace(l.Config().String("prompt_template", "")); tmpl != "" {
		res, err := renderFor(ctx, l, in, tmpl, "llm_prompt")
		if err != nil {
			return "", err
		}
		return res.Text, nil
	}

	query := in.String("query")
	prompt := strings.NewReplacer(
		"{query}", query,
		"{question}", query,
		"{context}", in.String("context"),
		"{system_prompt}", in.String("system_prompt"),
	).Replace(DefaultPrompt)
	prompt = blankLines.ReplaceAllString(prompt, "\n\n")
	return strings.TrimSpace(prompt), nil
}
