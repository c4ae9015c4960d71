package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// AnthropicConfig contains configuration for creating an AnthropicProvider.
type AnthropicConfig struct {
	// Model is the Claude model to use.
	Model string
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY env var.
	APIKey string
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of the direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
}

// AnthropicProvider implements Provider on top of the Anthropic SDK.
type AnthropicProvider struct {
	inner anthropic.Client
	model anthropic.Model
}

// NewAnthropicProvider creates a provider for the direct API or AWS Bedrock.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	return &AnthropicProvider{
		inner: anthropic.NewClient(opts...),
		model: model,
	}, nil
}

// Model returns the configured model name.
func (p *AnthropicProvider) Model() anthropic.Model {
	return p.model
}

// Complete sends one message exchange to the API.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: req.MaxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(req.Messages)),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	resp, err := p.inner.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &Completion{
		Content:      content,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// classifyError maps SDK and transport failures onto the provider taxonomy.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return fmt.Errorf("%w: %v", ErrAuthInvalid, err)
		case 429:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case 408, 504:
			return fmt.Errorf("%w: %v", ErrTimedOut, err)
		case 500, 502, 503, 529:
			return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimedOut, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimedOut, err)
		}
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return err
}
