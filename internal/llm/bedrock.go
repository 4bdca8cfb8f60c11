package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/comigor/twin/internal/logger"
)

// truncatedMarker opens a prompt whose window starts on an assistant turn;
// Bedrock requires the first message to come from the user.
const truncatedMarker = "[earlier conversation truncated]"

// ConverseAPI is the subset of *bedrockruntime.Client used by BedrockClient.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient calls the Bedrock Converse API.
type BedrockClient struct {
	api ConverseAPI
}

// NewBedrockClient wraps api.
func NewBedrockClient(api ConverseAPI) *BedrockClient {
	return &BedrockClient{api: api}
}

func (c *BedrockClient) Complete(ctx context.Context, messages []Message, model string, sampling Sampling) (string, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		System:   bedrockSystem(messages),
		Messages: bedrockMessages(messages),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(sampling.MaxTokens)),
			Temperature: aws.Float32(sampling.Temperature),
			TopP:        aws.Float32(sampling.TopP),
		},
	}

	out, err := c.api.Converse(ctx, input)
	if err != nil {
		kind := classifyBedrock(err)
		logger.L.Error("bedrock converse failed", "model", model, "kind", kind.Error(), "error", err)
		return "", newError(ProviderBedrock, kind, err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", newError(ProviderBedrock, ErrProvider, errors.New("converse returned no message"))
	}
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			return text.Value, nil
		}
	}
	return "", newError(ProviderBedrock, ErrProvider, errors.New("converse message has no text content"))
}

func classifyBedrock(err error) error {
	var validation *types.ValidationException
	if errors.As(err, &validation) {
		return ErrInvalidRequest
	}
	var denied *types.AccessDeniedException
	if errors.As(err, &denied) {
		return ErrAccessDenied
	}
	return ErrProvider
}

func bedrockSystem(messages []Message) []types.SystemContentBlock {
	var out []types.SystemContentBlock
	for _, m := range messages {
		if m.Role == RoleSystem && strings.TrimSpace(m.Content) != "" {
			out = append(out, &types.SystemContentBlockMemberText{Value: m.Content})
		}
	}
	return out
}

// bedrockMessages converts the conversation part of a prompt. Consecutive
// messages of the same role are merged into one message with several text
// blocks, since Converse expects roles to alternate.
func bedrockMessages(messages []Message) []types.Message {
	var out []types.Message
	for _, m := range messages {
		var role types.ConversationRole
		switch m.Role {
		case RoleUser:
			role = types.ConversationRoleUser
		case RoleAssistant:
			role = types.ConversationRoleAssistant
		default:
			continue
		}
		// Converse rejects blank text blocks.
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		block := &types.ContentBlockMemberText{Value: m.Content}

		if len(out) == 0 && role == types.ConversationRoleAssistant {
			out = append(out, types.Message{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: truncatedMarker}},
			})
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, block)
			continue
		}
		out = append(out, types.Message{Role: role, Content: []types.ContentBlock{block}})
	}
	return out
}
