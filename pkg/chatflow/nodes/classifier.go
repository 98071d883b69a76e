package nodes

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/chatflow/pkg/chatflow/config"
	"github.com/randalmurphal/chatflow/pkg/chatflow/llm"
	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
	"github.com/randalmurphal/chatflow/pkg/chatflow/service"
)

// Classifier model defaults.
const (
	DefaultClassifierProvider    = "openai"
	DefaultClassifierModel       = "gpt-4o-mini"
	DefaultClassifierTemperature = 0.3
	DefaultClassifierMaxTokens   = 64
	minClassifierMaxTokens       = 16
)

const classifierInstruction = "You are a question classifier. " +
	"Choose the single most appropriate category from the list below. " +
	"Respond with ONLY the category name."

// Class is one category of a classifier.
type Class struct {
	ID   string
	Name string
}

// Classifier asks the llm service to put the query into one of its classes
// and follows that class's branch.
//
// Data:
//
//	classes      [{id, name}]; a missing id is derived from the name
//	instruction  extra instructions appended to the prompt
//	model        "name" or {provider, name, completion_params{temperature, max_tokens}}
//
// Each class gets a class_<id>_branch output; class_<id>_branch and <id>
// are declared as live edge handles for the chosen class.
type Classifier struct {
	node.Base
	classes []Class
	model   modelConfig
}

type modelConfig struct {
	provider    string
	name        string
	temperature float64
	maxTokens   int
}

var (
	_ node.Node          = (*Classifier)(nil)
	_ node.TokenReporter = (*Classifier)(nil)
)

// NewClassifier is the question-classifier node factory.
func NewClassifier(spec node.Spec) (node.Node, error) {
	c := &Classifier{Base: node.NewBase(spec)}
	for i, cls := range c.Config().Objects("classes") {
		name := strings.TrimSpace(cls.String("name", ""))
		if name == "" {
			continue
		}
		id := strings.TrimSpace(cls.String("id", ""))
		if id == "" {
			id = slugify(name)
		}
		if id == "" {
			id = fmt.Sprintf("class_%d", i)
		}
		c.classes = append(c.classes, Class{ID: id, Name: name})
	}
	c.model = classifierModel(c.Config())
	return c, nil
}

func classifierModel(cfg config.Config) modelConfig {
	m := cfg.Map("model")
	if name := cfg.String("model", ""); name != "" {
		m = config.New(map[string]any{"name": name})
	}
	params := m.Map("completion_params")
	return modelConfig{
		provider:    strings.ToLower(m.String("provider", DefaultClassifierProvider)),
		name:        m.String("name", DefaultClassifierModel),
		temperature: min(max(params.Float("temperature", DefaultClassifierTemperature), 0), 1),
		maxTokens:   max(params.Int("max_tokens", DefaultClassifierMaxTokens), minClassifierMaxTokens),
	}
}

func slugify(name string) string {
	s := strings.ToLower(name)
	s = strings.NewReplacer(" ", "_", "/", "_").Replace(s)
	s = strings.ReplaceAll(s, "__", "_")
	return strings.Trim(s, "_")
}

// Classes returns the normalized classes.
func (c *Classifier) Classes() []Class { return c.classes }

func branchPort(id string) string { return "class_" + id + "_branch" }

// Ports implements node.Node.
func (c *Classifier) Ports() node.PortSchema {
	outputs := []node.Port{
		{Name: "class_name", Kind: node.KindString},
		{Name: "class_id", Kind: node.KindString},
		{Name: "usage", Kind: node.KindObject},
	}
	for _, cls := range c.classes {
		outputs = append(outputs, node.Port{Name: branchPort(cls.ID), Kind: node.KindBoolean})
	}
	return node.PortSchema{
		Inputs:  []node.Port{{Name: "query", Kind: node.KindString, Required: true}},
		Outputs: outputs,
	}
}

// Validate requires at least one class and distinct class ids, explicit or
// derived from names.
func (c *Classifier) Validate() error {
	if len(c.classes) == 0 {
		return ErrNoClasses
	}
	seen := make(map[string]string, len(c.classes))
	for _, cls := range c.classes {
		if prev, dup := seen[cls.ID]; dup {
			return invalidConfig("classes %q and %q share id %q", prev, cls.Name, cls.ID)
		}
		seen[cls.ID] = cls.Name
	}
	return nil
}

// TokensUsed implements node.TokenReporter.
func (c *Classifier) TokensUsed(out node.Outputs) int {
	usage, _ := out["usage"].(map[string]any)
	n, _ := usage["total_tokens"].(int)
	return n
}

// Prompt builds the classification prompt for query.
func (c *Classifier) Prompt(query string) string {
	var b strings.Builder
	b.WriteString(classifierInstruction)
	if extra := strings.TrimSpace(c.Config().String("instruction", "")); extra != "" {
		b.WriteString("\n\nAdditional instructions:\n")
		b.WriteString(extra)
	}
	b.WriteString("\n\nAvailable categories:\n")
	for i, cls := range c.classes {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + cls.Name)
	}
	b.WriteString("\n\nUser Question:\n")
	b.WriteString(query)
	b.WriteString("\n\nAnswer with exactly one category name.")
	return b.String()
}

// Execute implements node.Node.
func (c *Classifier) Execute(ctx node.Context, in node.Inputs) (node.Outputs, error) {
	query := in.String("query")
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("classifier %s: empty query", c.ID())
	}
	if len(c.classes) == 0 {
		return nil, ErrNoClasses
	}
	gen, err := service.Lookup[llm.Generator](ctx.Services(), service.LLM)
	if err != nil {
		return nil, err
	}

	req := llm.UserPrompt(c.Prompt(query))
	req.Provider = c.model.provider
	req.Model = c.model.name
	req.Temperature = c.model.temperature
	req.MaxTokens = c.model.maxTokens

	resp, err := gen.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	chosen, ok := c.match(resp.Content)
	if !ok {
		ctx.Logger().Warn("classifier reply matched no class, using the first",
			"reply", resp.Content, "class", chosen.Name)
	}

	out := node.Outputs{
		"class_name": chosen.Name,
		"class_id":   chosen.ID,
		"usage":      map[string]any{"total_tokens": resp.Usage.TotalTokens},
	}
	for _, cls := range c.classes {
		out[branchPort(cls.ID)] = cls.ID == chosen.ID
	}
	ctx.DeclareNextEdges(branchPort(chosen.ID), chosen.ID)
	return out, nil
}

// match finds the class named by reply: exact case-insensitive match first,
// then a class name contained in the reply. It falls back to the first class.
func (c *Classifier) match(reply string) (Class, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(reply))
	for _, cls := range c.classes {
		if strings.ToLower(cls.Name) == cleaned {
			return cls, true
		}
	}
	for _, cls := range c.classes {
		if strings.Contains(cleaned, strings.ToLower(cls.Name)) {
			return cls, true
		}
	}
	return c.classes[0], false
}
