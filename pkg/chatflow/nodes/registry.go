// Package nodes provides the built-in node kinds: start, end, answer,
// if-else, question-classifier, assigner, llm, template-transform and
// nested workflow.
//
// Most callers only need NewRegistry:
//
//	reg := nodes.NewRegistry()
//	exec := chatflow.NewExecutor(reg, chatflow.WithServices(services))
package nodes

import (
	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
)

// Built-in node type names.
const (
	TypeStart             = "start"
	TypeEnd               = "end"
	TypeAnswer            = "answer"
	TypeIfElse            = "if-else"
	TypeClassifier        = "question-classifier"
	TypeAssigner          = "assigner"
	TypeLLM               = "llm"
	TypeTemplateTransform = "template-transform"
	TypeWorkflow          = "workflow"
	// TypeImportedWorkflow is accepted as an alias of TypeWorkflow.
	TypeImportedWorkflow = "imported-workflow"
)

// Factories returns the factory of every built-in type, keyed by type name.
// Use it to extend a registry that also holds custom nodes.
func Factories() map[string]node.Factory {
	return map[string]node.Factory{
		TypeStart:             NewStart,
		TypeEnd:               NewEnd,
		TypeAnswer:            NewAnswer,
		TypeIfElse:            NewIfElse,
		TypeClassifier:        NewClassifier,
		TypeAssigner:          NewAssigner,
		TypeLLM:               NewLLM,
		TypeTemplateTransform: NewTemplateTransform,
		TypeWorkflow:          NewWorkflow,
		TypeImportedWorkflow:  NewWorkflow,
	}
}

// NewRegistry returns a frozen registry holding every built-in type.
func NewRegistry() *node.Registry {
	reg := node.NewRegistry()
	for typ, f := range Factories() {
		reg.MustRegister(typ, f)
	}
	reg.Freeze()
	return reg
}
