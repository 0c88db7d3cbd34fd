package main

import (
	"fmt"
	"sync"
	"time"
)

type assistant struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	CreatedAt string         `json:"createdAt"`
	Config    map[string]any `json:"config,omitempty"`
}

type platformNumber struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	Provider    string `json:"provider"`
	AssistantID string `json:"assistantId,omitempty"`
	Name        string `json:"name,omitempty"`
}

type carrierNumber struct {
	Sid          string `json:"sid"`
	PhoneNumber  string `json:"phone_number"`
	FriendlyName string `json:"friendly_name"`
	Status       string `json:"status"`
}

type email struct {
	ID      string   `json:"id"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
}

type call struct {
	ID          string `json:"id"`
	AssistantID string `json:"assistantId"`
	Customer    string `json:"customer"`
	Status      string `json:"status"`
}

// state is everything the mock remembers between requests.
type state struct {
	mu           sync.Mutex
	numberPrefix string
	seq          int

	Assistants map[string]assistant      `json:"assistants"`
	Platform   map[string]platformNumber `json:"phone_numbers"`
	Carrier    map[string]carrierNumber  `json:"carrier_numbers"`
	Emails     []email                   `json:"emails"`
	Calls      []call                    `json:"calls"`
}

func newState(numberPrefix string) *state {
	return &state{
		numberPrefix: numberPrefix,
		Assistants:   map[string]assistant{},
		Platform:     map[string]platformNumber{},
		Carrier:      map[string]carrierNumber{},
	}
}

func (s *state) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%06d", prefix, s.seq)
}

// availableNumbers returns numbers not yet bought, derived from the prefix.
func (s *state) availableNumbers(limit int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	taken := map[string]bool{}
	for _, n := range s.Carrier {
		taken[n.PhoneNumber] = true
	}
	var out []string
	for i := 0; len(out) < limit && i < 10000; i++ {
		n := fmt.Sprintf("%s%04d", s.numberPrefix, i)
		if !taken[n] {
			out = append(out, n)
		}
	}
	return out
}

func (s *state) buyNumber(number, friendly string) (carrierNumber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.Carrier {
		if n.PhoneNumber == number {
			return carrierNumber{}, false
		}
	}
	n := carrierNumber{Sid: s.nextID("PN"), PhoneNumber: number, FriendlyName: friendly, Status: "in-use"}
	s.Carrier[n.Sid] = n
	return n, true
}

func (s *state) carrierNumber(sid string) (carrierNumber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.Carrier[sid]
	return n, ok
}

func (s *state) createAssistant(name string, cfg map[string]any) assistant {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := assistant{ID: s.nextID("asst_"), Name: name, CreatedAt: time.Now().UTC().Format(time.RFC3339), Config: cfg}
	s.Assistants[a.ID] = a
	return a
}

func (s *state) updateAssistant(id string, name string, cfg map[string]any) (assistant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.Assistants[id]
	if !ok {
		return assistant{}, false
	}
	if name != "" {
		a.Name = name
	}
	a.Config = cfg
	s.Assistants[id] = a
	return a, true
}

func (s *state) assistant(id string) (assistant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.Assistants[id]
	return a, ok
}

func (s *state) platformNumbers() []platformNumber {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]platformNumber, 0, len(s.Platform))
	for _, n := range s.Platform {
		out = append(out, n)
	}
	return out
}

// importNumber fails when the number is already registered, like the real platform.
func (s *state) importNumber(number, name, assistantID string) (platformNumber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.Platform {
		if n.Number == number {
			return n, false
		}
	}
	n := platformNumber{ID: s.nextID("pn_"), Number: number, Provider: "twilio", Name: name, AssistantID: assistantID}
	s.Platform[n.ID] = n
	return n, true
}

func (s *state) assignNumber(id, assistantID string) (platformNumber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.Platform[id]
	if !ok {
		return platformNumber{}, false
	}
	n.AssistantID = assistantID
	s.Platform[id] = n
	return n, true
}

func (s *state) recordEmail(to []string, subject string) email {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := email{ID: s.nextID("re_"), To: to, Subject: subject}
	s.Emails = append(s.Emails, e)
	return e
}

func (s *state) recordCall(assistantID, customer string) call {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := call{ID: s.nextID("call_"), AssistantID: assistantID, Customer: customer, Status: "queued"}
	s.Calls = append(s.Calls, c)
	return c
}
