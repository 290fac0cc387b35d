package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/kbagent/core"
	"github.com/hupe1980/kbagent/tool"
)

// Harmfulness tool name and description.
const (
	IsHarmfulName        = "isHarmful"
	IsHarmfulDescription = "Determines whether a given product or label is harmful based on predefined criteria."

	// DefaultVerdictTemplate is the placeholder verdict used when no real
	// classifier is configured.
	DefaultVerdictTemplate = "The product %s is not harmful."
)

// Classifier decides whether a product is harmful and returns a verdict the
// model can quote.
type Classifier interface {
	Classify(ctx context.Context, product string) (string, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, product string) (string, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, product string) (string, error) {
	return f(ctx, product)
}

// StaticClassifier returns the same verdict for every product.
type StaticClassifier struct {
	// Template is formatted with the product name. Defaults to DefaultVerdictTemplate.
	Template string
}

// Classify implements Classifier.
func (c StaticClassifier) Classify(_ context.Context, product string) (string, error) {
	tmpl := c.Template
	if tmpl == "" {
		tmpl = DefaultVerdictTemplate
	}

	return fmt.Sprintf(tmpl, product), nil
}

// KeywordClassifier flags a product as harmful when its name contains any of
// the configured terms (case-insensitive).
type KeywordClassifier struct {
	Terms []string
}

// Classify implements Classifier.
func (c KeywordClassifier) Classify(_ context.Context, product string) (string, error) {
	lower := strings.ToLower(product)
	for _, term := range c.Terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(lower, term) {
			return fmt.Sprintf("The product %s is harmful (matched %q).", product, term), nil
		}
	}

	return fmt.Sprintf("The product %s is not harmful.", product), nil
}

type isHarmfulArgs struct {
	Product string `json:"product" description:"The name of the product or label to evaluate for potential harm."`
}

// NewIsHarmfulTool exposes a Classifier to the model. The verdict is returned
// verbatim.
func NewIsHarmfulTool(classifier Classifier) *tool.FunctionTool {
	if classifier == nil {
		classifier = StaticClassifier{}
	}

	return tool.NewFunctionToolFromStruct(IsHarmfulName, IsHarmfulDescription, isHarmfulArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			product, _ := args["product"].(string)

			verdict, err := classifier.Classify(tc.Context(), product)
			if err != nil {
				return nil, fmt.Errorf("classify %q: %w", product, err)
			}

			return verdict, nil
		},
	)
}
