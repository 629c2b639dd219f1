package providers

import "strings"

func augmentProviderError(providerName, message string) string {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return msg
	}

	lower := strings.ToLower(msg)
	providerName = NormalizeProviderName(providerName)

	switch providerName {
	case ProviderOpenAI:
		if strings.Contains(lower, "incorrect api key provided") {
			return msg + " Hint: set providers.openai.api_key or STUDIOGM_PROVIDERS_OPENAI_API_KEY to a Platform API key."
		}
		if strings.Contains(lower, "does not exist") && strings.Contains(lower, "model") {
			return msg + " Hint: gm.model must name a model your OpenAI project can use."
		}
	case ProviderOpenRouter:
		if strings.Contains(lower, "no auth credentials") || strings.Contains(lower, "user not found") {
			return msg + " Hint: set providers.openrouter.api_key or STUDIOGM_PROVIDERS_OPENROUTER_API_KEY."
		}
		if strings.Contains(lower, "not a valid model id") || strings.Contains(lower, "no endpoints found") {
			return msg + " Hint: OpenRouter model ids look like vendor/model, e.g. openai/gpt-5.2."
		}
	case ProviderSummary:
		return msg + " Hint: summaries fall back to a local digest until summary.api_base and summary.api_key are fixed."
	}

	return msg
}
