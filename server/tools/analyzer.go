package tools

import (
	"context"
	"encoding/json"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"github.com/teilomillet/concierge/server/chat"
	"github.com/teilomillet/concierge/server/completion"
	"github.com/teilomillet/concierge/server/prompt"
)

// ImageAnalysisTool is the name the model uses to request image analysis.
const ImageAnalysisTool = "get_image_for_analysis"

const (
	MsgNoImageFound   = "Failed to make analysis. No image found"
	MsgAnalysisFailed = "Failed to analyze image. An unexpected error occurred."
)

var imageAnalysisDeclaration = completion.Tool{
	Name: ImageAnalysisTool,
	Description: "Analyze one or more images the customer shared earlier in the conversation, " +
		"for example to identify a garment, its fabric or a stain, and answer a question about them.",
	Parameters: jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"query": {
				Type:        jsonschema.String,
				Description: "What to look for in the images, phrased as a question or instruction",
			},
			"images": {
				Type:        jsonschema.Array,
				Description: "Image paths or data URIs from the conversation, e.g. /uploads/shirt.jpg",
				Items:       &jsonschema.Definition{Type: jsonschema.String},
			},
		},
		Required: []string{"query", "images"},
	},
}

type analysisArgs struct {
	Query  string   `json:"query"`
	Images []string `json:"images"`
}

// ImageAnalyzer answers a query about images with a vision-capable model.
type ImageAnalyzer struct {
	completer completion.Completer
	prompts   *prompt.Assembler
	resolver  *ImageResolver
	model     string
	logger    *zap.Logger
}

// NewImageAnalyzer creates the get_image_for_analysis handler.
func NewImageAnalyzer(completer completion.Completer, prompts *prompt.Assembler, resolver *ImageResolver, visionModel string, logger *zap.Logger) *ImageAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageAnalyzer{
		completer: completer,
		prompts:   prompts,
		resolver:  resolver,
		model:     visionModel,
		logger:    logger,
	}
}

// Declaration describes the tool to the model.
func (a *ImageAnalyzer) Declaration() completion.Tool {
	return imageAnalysisDeclaration
}

// Handle resolves the requested images and asks the vision model about them.
// Tools are never offered on this call.
func (a *ImageAnalyzer) Handle(ctx context.Context, call Call) chat.ToolResult {
	var args analysisArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return chat.Failure(MsgBadArguments, err)
	}

	images := a.resolver.Resolve(ctx, args.Images)
	if len(images) == 0 {
		a.logger.Info("No image could be resolved", zap.Int("requested", len(args.Images)))
		return chat.Failure(MsgNoImageFound, nil)
	}

	system, err := a.prompts.ImageAnalysisPrompt()
	if err != nil {
		return chat.Failure(MsgAnalysisFailed, err)
	}

	messages := make([]chat.Turn, 0, len(call.Context)+3)
	messages = append(messages, chat.SystemTurn(system))
	messages = append(messages, call.Context...)
	if call.Inquiry != "" {
		messages = append(messages, chat.UserTurn(chat.Text(call.Inquiry)))
	}
	parts := make([]chat.Part, 0, len(images)+1)
	parts = append(parts, chat.TextPart(args.Query))
	for _, img := range images {
		parts = append(parts, chat.ImagePart(img))
	}
	messages = append(messages, chat.UserTurn(chat.Multi(parts...)))

	resp, err := a.completer.Complete(ctx, completion.Request{
		Model:    a.model,
		Messages: messages,
	})
	if err != nil {
		a.logger.Warn("Image analysis failed", zap.Error(err))
		return chat.Failure(MsgAnalysisFailed, err)
	}
	return chat.Success(resp.Message.Content.String())
}
