//go:build !bedrock

package llm

import (
	"fmt"
	"log/slog"

	"adjutant/internal/domain"
	"adjutant/internal/infra/config"
)

// NewBedrockProvider is unavailable without the bedrock build tag, which
// pulls in the AWS SDK.
func NewBedrockProvider(cfg config.ProviderConfig, _ *slog.Logger) (domain.LLMProvider, error) {
	return nil, fmt.Errorf("provider %q: binary built without bedrock support", cfg.Name)
}
