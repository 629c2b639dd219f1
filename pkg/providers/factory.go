package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dotsetgreg/studiogm/pkg/config"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderSummary    = "summary"
)

// Factory builds the game master generator for one provider name. Status
// reports whether credentials are present without building anything.
type Factory struct {
	Build    func(cfg *config.Config) (TextGenerator, error)
	Validate func(cfg *config.Config) error
	Status   func(cfg *config.Config) (configured bool, mode string)
}

// EndpointStatus describes one configured model endpoint for `status`.
type EndpointStatus struct {
	Name       string
	Configured bool
	Mode       string
	Model      string
}

var (
	factoryMu       sync.RWMutex
	factories       = map[string]Factory{}
	registrationErr error
)

// RegisterFactory adds a game master provider. Bad registrations are kept as
// an error surfaced by every later lookup instead of panicking in init.
func RegisterFactory(name string, f Factory) {
	name = NormalizeProviderName(name)
	factoryMu.Lock()
	defer factoryMu.Unlock()
	switch {
	case name == ProviderSummary:
		registrationErr = errors.Join(registrationErr, fmt.Errorf("providers: %q is reserved for the summary endpoint", name))
	case f.Build == nil:
		registrationErr = errors.Join(registrationErr, fmt.Errorf("providers: factory %q needs a build func", name))
	case f.Status == nil:
		registrationErr = errors.Join(registrationErr, fmt.Errorf("providers: factory %q needs a status func", name))
	default:
		factories[name] = f
	}
}

func SupportedProviders() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NormalizeProviderName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ProviderOpenRouter
	}
	return name
}

func ActiveProviderName(cfg *config.Config) string {
	if cfg == nil {
		return ProviderOpenRouter
	}
	return NormalizeProviderName(cfg.GM.Provider)
}

func ValidateProviderConfig(cfg *config.Config) error {
	f, _, err := lookupFactory(cfg)
	if err != nil {
		return err
	}
	if f.Validate == nil {
		return nil
	}
	return f.Validate(cfg)
}

// ProviderCredentialStatus reports the game master provider's credentials.
func ProviderCredentialStatus(cfg *config.Config) (provider string, configured bool, mode string, err error) {
	f, name, err := lookupFactory(cfg)
	if err != nil {
		return "", false, "", err
	}
	configured, mode = f.Status(cfg)
	return name, configured, mode, nil
}

// SummaryStatus reports the memory summarization endpoint. An unconfigured
// endpoint is not an error: summaries then fall back to a local digest.
func SummaryStatus(cfg *config.Config) EndpointStatus {
	st := EndpointStatus{Name: ProviderSummary}
	if cfg == nil {
		return st
	}
	st.Model = strings.TrimSpace(cfg.Summary.Model)
	if cfg.SummaryEnabled() && st.Model != "" {
		st.Configured, st.Mode = true, authModeAPIKey
	}
	return st
}

// CreateGenerator builds the TextGenerator selected by gm.provider.
func CreateGenerator(cfg *config.Config) (TextGenerator, error) {
	f, _, err := lookupFactory(cfg)
	if err != nil {
		return nil, err
	}
	return f.Build(cfg)
}

// CreateSummaryClient builds the summarization client from the summary
// section. Callers check SummaryStatus first.
func CreateSummaryClient(cfg *config.Config) (*SummaryClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return NewSummaryClient(cfg.Summary.APIBase, cfg.Summary.APIKey, cfg.Summary.Model)
}

func lookupFactory(cfg *config.Config) (Factory, string, error) {
	name := ActiveProviderName(cfg)

	factoryMu.RLock()
	if registrationErr != nil {
		err := registrationErr
		factoryMu.RUnlock()
		return Factory{}, name, fmt.Errorf("provider registration failed: %w", err)
	}
	f, ok := factories[name]
	factoryMu.RUnlock()
	if !ok {
		return Factory{}, name, fmt.Errorf("unsupported provider %q: supported providers are %s", name, strings.Join(SupportedProviders(), ", "))
	}
	return f, name, nil
}
