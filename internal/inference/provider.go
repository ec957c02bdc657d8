package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
)

// Config controls provider construction.
type Config struct {
	Mode             string
	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string
	BedrockRegion    string
	BedrockModel     string
	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIBaseURL    string
	HTTPURL          string
	HTTPTimeout      time.Duration
}

// NewProvider selects a backend by mode. auto prefers anthropic, then
// openai, then http, falling back to mock when nothing is configured.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoProvider(cfg), nil
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return nil, errors.New("anthropic API key is required for anthropic mode")
		}
		return newAnthropic(cfg), nil
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModel) == "" {
			return nil, errors.New("bedrock model or inference profile ARN is required for bedrock mode")
		}
		return NewBedrockProvider(ctx, cfg.BedrockRegion, cfg.BedrockModel), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("openai API key is required for openai mode")
		}
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("inference HTTP url is required for http mode")
		}
		return NewHTTPProvider(cfg.HTTPURL, cfg.HTTPTimeout), nil
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported inference mode %q", cfg.Mode)
	}
}

func newAutoProvider(cfg Config) Provider {
	if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
		return newAnthropic(cfg)
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	}
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		return NewHTTPProvider(cfg.HTTPURL, cfg.HTTPTimeout)
	}
	return NewMockProvider()
}

func newAnthropic(cfg Config) *AnthropicProvider {
	if base := strings.TrimSpace(cfg.AnthropicBaseURL); base != "" {
		return NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel, option.WithBaseURL(base))
	}
	return NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel)
}
