package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/ent0n29/tensai/internal/conversation"
	"github.com/ent0n29/tensai/internal/reliability"
)

// AnthropicProvider talks to the Messages API, directly or through Bedrock.
// SDK retries are disabled; Client owns the backoff policy.
type AnthropicProvider struct {
	name   string
	client anthropic.Client
	model  string
}

func NewAnthropicProvider(apiKey, model string, opts ...option.RequestOption) *AnthropicProvider {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	return &AnthropicProvider{
		name:   "anthropic",
		client: anthropic.NewClient(append(base, opts...)...),
		model:  model,
	}
}

// NewBedrockProvider signs requests with the AWS default credential chain.
// model is the Bedrock model id or inference profile ARN.
func NewBedrockProvider(ctx context.Context, region, model string) *AnthropicProvider {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if strings.TrimSpace(region) != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	return &AnthropicProvider{
		name: "bedrock",
		client: anthropic.NewClient(
			bedrock.WithLoadDefaultConfig(ctx, loadOpts...),
			option.WithMaxRetries(0),
		),
		model: model,
	}
}

func (p *AnthropicProvider) Name() string { return p.name }

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages:  anthropicMessages(req.Turns),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && reliability.IsThrottlingHTTPStatus(apiErr.StatusCode) {
			return "", &reliability.ThrottleError{Provider: p.name, StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", fmt.Errorf("%s messages: %w", p.name, err)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}

// anthropicMessages merges consecutive same-role turns and makes sure the
// conversation opens with a user message, as the API requires.
func anthropicMessages(turns []conversation.Turn) []anthropic.MessageParam {
	type merged struct {
		role conversation.Role
		text []string
	}
	var runs []merged
	for _, t := range turns {
		if n := len(runs); n > 0 && runs[n-1].role == t.Role {
			runs[n-1].text = append(runs[n-1].text, t.Content)
			continue
		}
		runs = append(runs, merged{role: t.Role, text: []string{t.Content}})
	}
	if len(runs) == 0 || runs[0].role != conversation.RoleUser {
		runs = append([]merged{{role: conversation.RoleUser, text: []string{"(conversation start)"}}}, runs...)
	}

	out := make([]anthropic.MessageParam, 0, len(runs))
	for _, r := range runs {
		block := anthropic.NewTextBlock(strings.Join(r.text, "\n\n"))
		if r.role == conversation.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
