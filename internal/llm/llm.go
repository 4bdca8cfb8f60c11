package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/twin/internal/cloud"
	"github.com/comigor/twin/internal/config"
)

// Provider names reported in errors.
const (
	ProviderBedrock = config.ProviderBedrock
	ProviderOpenAI  = config.ProviderOpenAI
	ProviderMock    = config.ProviderMock
)

// NewClient creates the inference client for the configured provider.
func NewClient(ctx context.Context, cfg *config.Config) (Client, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case config.ProviderBedrock:
		awsCfg, err := cloud.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg)), nil

	case config.ProviderOpenAI:
		oc := openai.DefaultConfig(cfg.LLM.APIKey)
		if cfg.LLM.BaseURL != "" {
			oc.BaseURL = cfg.LLM.BaseURL
		}
		return NewOpenAIClient(openai.NewClientWithConfig(oc)), nil

	case config.ProviderMock:
		return NewMockClient(), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
}
