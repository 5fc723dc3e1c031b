package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"adjutant/internal/domain"
	"adjutant/internal/infra/config"
	"adjutant/internal/infra/tracer"
)

var _ domain.LLMProvider = (*AzureProvider)(nil)

// azureDefaultAPIVersion is used when the config leaves api_version empty.
const azureDefaultAPIVersion = "2024-06-01"

// AzureProvider implements domain.LLMProvider against Azure OpenAI. The
// wire format matches OpenAI's chat completions; only the URL layout
// (deployment in the path, api-version in the query) and the auth header
// differ, so the request/response conversion is shared with OpenAIProvider.
type AzureProvider struct {
	name       string
	model      string
	apiKey     string
	endpoint   string // full chat/completions URL including api-version
	client     *http.Client
	logger     *slog.Logger
	deployment string
}

// NewAzureProvider creates an Azure OpenAI provider. BaseURL is the
// resource endpoint (https://<resource>.openai.azure.com); Deployment
// names the deployed model.
func NewAzureProvider(cfg config.ProviderConfig, logger *slog.Logger) (*AzureProvider, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("azure provider %q: base_url is required", cfg.Name)
	}
	deployment := cfg.Deployment
	if deployment == "" {
		deployment = cfg.Model
	}
	if deployment == "" {
		return nil, fmt.Errorf("azure provider %q: deployment is required", cfg.Name)
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = azureDefaultAPIVersion
	}

	endpoint := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		baseURL, url.PathEscape(deployment), url.QueryEscape(apiVersion))

	return &AzureProvider{
		name:       cfg.Name,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		client:     NewHTTPClient(cfg),
		logger:     logger,
		deployment: deployment,
	}, nil
}

// Chat implements domain.LLMProvider.
func (p *AzureProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.deployment", p.deployment),
		),
	)
	defer span.End()

	if req.Model == "" {
		req.Model = p.model
	}

	body, err := json.Marshal(toOpenAIRequest(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	// Azure authenticates with an api-key header, not a bearer token.
	headers := map[string]string{"api-key": p.apiKey}

	respBody, err := doJSONRequest(ctx, p.client, p.endpoint, body, headers)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var oaiResp openaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	result := fromOpenAIResponse(oaiResp)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)

	return result, nil
}

// Name implements domain.LLMProvider.
func (p *AzureProvider) Name() string { return p.name }
