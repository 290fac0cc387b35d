package builtin

import (
	"fmt"
	"strings"

	"github.com/hupe1980/kbagent/core"
	"github.com/hupe1980/kbagent/tool"
)

// Tool names and descriptions as presented to the model.
const (
	AddResourceName        = "addResource"
	AddResourceDescription = "add a resource to your knowledge base.\n" +
		"If the user provides a random piece of knowledge unprompted, use this tool without asking for confirmation."

	GetInformationName        = "getInformation"
	GetInformationDescription = "get information from knowledge base to answer questions."

	// IngestAcknowledgement is returned to the model after a successful ingest.
	IngestAcknowledgement = "Resource successfully created and embedded."
)

type addResourceArgs struct {
	Content string `json:"content" description:"the content or resource to add to the knowledge base" schema:"minLength=1"`
}

type getInformationArgs struct {
	Question string `json:"question" description:"the users question" schema:"minLength=1"`
}

// NewAddResourceTool exposes ingestion to the model. The tool is side
// effecting so an in-flight ingest completes even if the caller goes away.
func NewAddResourceTool(ingester core.Ingester) *tool.FunctionTool {
	return tool.NewFunctionToolFromStruct(AddResourceName, AddResourceDescription, addResourceArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			content, _ := args["content"].(string)
			if strings.TrimSpace(content) == "" {
				return nil, &tool.ValidationError{Field: "content", Message: "content must not be empty"}
			}

			res, err := ingester.Ingest(tc.Context(), content)
			if err != nil {
				return nil, fmt.Errorf("ingest resource: %w", err)
			}

			tc.LogInfo("tool.add_resource.ingested", "resource_id", res.ID, "chunks", res.Chunks, "fc_id", tc.FunctionCallID())

			return IngestAcknowledgement, nil
		},
		tool.WithSideEffects(),
	)
}

// NewGetInformationTool exposes retrieval to the model. Fragments are passed
// through in the order the retriever ranked them.
func NewGetInformationTool(retriever core.Retriever) *tool.FunctionTool {
	return tool.NewFunctionToolFromStruct(GetInformationName, GetInformationDescription, getInformationArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			question, _ := args["question"].(string)
			if strings.TrimSpace(question) == "" {
				return nil, &tool.ValidationError{Field: "question", Message: "question must not be empty"}
			}

			fragments, err := retriever.Retrieve(tc.Context(), question)
			if err != nil {
				return nil, fmt.Errorf("retrieve information: %w", err)
			}

			tc.LogDebug("tool.get_information.retrieved", "fragments", len(fragments), "fc_id", tc.FunctionCallID())

			if fragments == nil {
				fragments = []core.Fragment{}
			}

			return fragments, nil
		},
	)
}
