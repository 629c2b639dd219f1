package providers

import (
	"fmt"
	"strings"

	"github.com/dotsetgreg/studiogm/pkg/config"
)

const (
	defaultOpenAIAPIBase = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-5-mini"
)

func init() {
	RegisterFactory(ProviderOpenAI, Factory{
		Build:    newOpenAIProviderFromConfig,
		Validate: validateOpenAIConfig,
		Status:   openAICredentialStatus,
	})
}

func validateOpenAIConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if strings.TrimSpace(cfg.Providers.OpenAI.APIKey) == "" {
		return fmt.Errorf("OpenAI API key is required (set providers.openai.api_key or STUDIOGM_PROVIDERS_OPENAI_API_KEY)")
	}
	return nil
}

func openAICredentialStatus(cfg *config.Config) (bool, string) {
	if validateOpenAIConfig(cfg) != nil {
		return false, ""
	}
	return true, authModeAPIKey
}

func newOpenAIProviderFromConfig(cfg *config.Config) (TextGenerator, error) {
	if err := validateOpenAIConfig(cfg); err != nil {
		return nil, err
	}

	apiBase := strings.TrimSpace(cfg.Providers.OpenAI.APIBase)
	if apiBase == "" {
		apiBase = defaultOpenAIAPIBase
	}
	extraHeaders := map[string]string{}
	if org := strings.TrimSpace(cfg.Providers.OpenAI.Organization); org != "" {
		extraHeaders["OpenAI-Organization"] = org
	}
	if project := strings.TrimSpace(cfg.Providers.OpenAI.Project); project != "" {
		extraHeaders["OpenAI-Project"] = project
	}

	return newChatCompletionsProvider(
		ProviderOpenAI,
		apiBase,
		defaultOpenAIModel,
		strings.TrimSpace(cfg.Providers.OpenAI.Proxy),
		NewAPIKeyAuth(NewStaticTokenSource(cfg.Providers.OpenAI.APIKey, "providers.openai.api_key")),
		extraHeaders,
	)
}
