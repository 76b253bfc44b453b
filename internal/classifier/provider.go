package classifier

import (
	"fmt"
	"net/http"
)

const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// ProviderConfig selects and configures a model backend.
type ProviderConfig struct {
	Name    string
	Model   string
	BaseURL string
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// NewProvider builds the Provider named in cfg.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case "", ProviderGemini:
		return NewGemini(cfg), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Name)
	}
}
