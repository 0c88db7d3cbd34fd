package vapi

import "provisioner/internal/domain"

const (
	defaultModelProvider = "openai"
	defaultModel         = "gpt-3.5-turbo"
	voiceProvider        = "11labs"
)

// NewAssistantRequest builds the platform payload for an order's agent.
// serverURL receives end-of-call reports and may be empty.
func NewAssistantRequest(name string, cfg domain.AgentConfig, ch domain.MessagingChannel, serverURL string, meta map[string]string) AssistantRequest {
	return AssistantRequest{
		Name: name,
		Model: Model{
			Provider: defaultModelProvider,
			Model:    defaultModel,
			Messages: []Message{{Role: "system", Content: cfg.Prompt}},
		},
		Voice:                  Voice{Provider: voiceProvider, VoiceID: cfg.Voice},
		FirstMessage:           cfg.FirstMessage,
		ServerURL:              serverURL,
		EndCallFunctionEnabled: cfg.EndCallEnabled,
		ResponseMode:           responseMode(cfg.ResponseMode),
		StructuredOutputs:      OutputSchema(ch),
		Metadata:               meta,
	}
}
