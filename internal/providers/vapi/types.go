package vapi

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Model struct {
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	Messages []Message `json:"messages,omitempty"`
}

type Voice struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId"`
}

type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

type StructuredOutput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Schema      Schema `json:"schema"`
}

type AssistantRequest struct {
	Name                   string             `json:"name"`
	Model                  Model              `json:"model"`
	Voice                  Voice              `json:"voice"`
	FirstMessage           string             `json:"firstMessage,omitempty"`
	ServerURL              string             `json:"serverUrl,omitempty"`
	EndCallFunctionEnabled bool               `json:"endCallFunctionEnabled"`
	ResponseMode           string             `json:"responseMode,omitempty"`
	StructuredOutputs      []StructuredOutput `json:"structuredOutputs,omitempty"`
	Metadata               map[string]string  `json:"metadata,omitempty"`
}

type Assistant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type PhoneNumber struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	Provider    string `json:"provider,omitempty"`
	AssistantID string `json:"assistantId,omitempty"`
	Name        string `json:"name,omitempty"`
}

type importRequest struct {
	Provider         string `json:"provider"`
	Number           string `json:"number"`
	TwilioAccountSid string `json:"twilioAccountSid"`
	TwilioAuthToken  string `json:"twilioAuthToken"`
	Name             string `json:"name,omitempty"`
	AssistantID      string `json:"assistantId,omitempty"`
}

type CallCustomer struct {
	Number string `json:"number"`
}

type callRequest struct {
	AssistantID   string       `json:"assistantId"`
	PhoneNumberID string       `json:"phoneNumberId,omitempty"`
	Customer      CallCustomer `json:"customer"`
}

type Call struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
