package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func writeTwilioError(w http.ResponseWriter, status, code int, msg string) {
	writeJSON(w, status, twilioError{Code: code, Message: msg, Status: status})
}

func writePlatformError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"statusCode": status, "message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) handleSearchNumbers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("PageSize"))
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	country := strings.ToUpper(mux.Vars(r)["country"])
	nums := s.state.availableNumbers(limit)
	out := make([]map[string]string, 0, len(nums))
	for _, n := range nums {
		out = append(out, map[string]string{
			"phone_number":  n,
			"friendly_name": n,
			"locality":      "Milano",
			"region":        "MI",
			"iso_country":   country,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"available_phone_numbers": out})
}

func (s *server) handlePurchaseNumber(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeTwilioError(w, http.StatusBadRequest, 21620, "Invalid form data")
		return
	}
	number := r.Form.Get("PhoneNumber")
	if number == "" {
		writeTwilioError(w, http.StatusBadRequest, 21602, "PhoneNumber is required")
		return
	}
	if !s.injectFault(w, r, func(w http.ResponseWriter, status int, msg string) {
		writeTwilioError(w, status, 20500, msg)
	}) {
		return
	}
	n, ok := s.state.buyNumber(number, r.Form.Get("FriendlyName"))
	if !ok {
		writeTwilioError(w, http.StatusBadRequest, 21422, "PhoneNumber is not available")
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *server) handleGetNumber(w http.ResponseWriter, r *http.Request) {
	n, ok := s.state.carrierNumber(mux.Vars(r)["sid"])
	if !ok {
		writeTwilioError(w, http.StatusNotFound, 20404, "The requested resource was not found")
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *server) handleCreateAssistant(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writePlatformError(w, http.StatusBadRequest, "invalid json")
		return
	}
	name, _ := raw["name"].(string)
	if name == "" {
		writePlatformError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !s.injectFault(w, r, writePlatformError) {
		return
	}
	writeJSON(w, http.StatusCreated, s.state.createAssistant(name, raw))
}

func (s *server) handleUpdateAssistant(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writePlatformError(w, http.StatusBadRequest, "invalid json")
		return
	}
	name, _ := raw["name"].(string)
	a, ok := s.state.updateAssistant(mux.Vars(r)["id"], name, raw)
	if !ok {
		writePlatformError(w, http.StatusNotFound, "assistant not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *server) handleGetAssistant(w http.ResponseWriter, r *http.Request) {
	a, ok := s.state.assistant(mux.Vars(r)["id"])
	if !ok {
		writePlatformError(w, http.StatusNotFound, "assistant not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *server) handleListPhoneNumbers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.platformNumbers())
}

type importBody struct {
	Provider         string `json:"provider"`
	Number           string `json:"number"`
	TwilioAccountSid string `json:"twilioAccountSid"`
	TwilioAuthToken  string `json:"twilioAuthToken"`
	Name             string `json:"name"`
	AssistantID      string `json:"assistantId"`
}

func (s *server) handleImportPhoneNumber(w http.ResponseWriter, r *http.Request) {
	var in importBody
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Number == "" {
		writePlatformError(w, http.StatusBadRequest, "number is required")
		return
	}
	if in.TwilioAccountSid != s.cfg.TwilioAccountSID || in.TwilioAuthToken != s.cfg.TwilioAuthToken {
		writePlatformError(w, http.StatusBadRequest, "invalid twilio credentials")
		return
	}
	n, created := s.state.importNumber(in.Number, in.Name, in.AssistantID)
	if !created {
		writePlatformError(w, http.StatusBadRequest, "Number already exists")
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *server) handleAssignPhoneNumber(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AssistantID string `json:"assistantId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writePlatformError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if _, ok := s.state.assistant(in.AssistantID); !ok {
		writePlatformError(w, http.StatusBadRequest, "assistant does not exist")
		return
	}
	n, ok := s.state.assignNumber(mux.Vars(r)["id"], in.AssistantID)
	if !ok {
		writePlatformError(w, http.StatusNotFound, "phone number not found")
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AssistantID string `json:"assistantId"`
		Customer    struct {
			Number string `json:"number"`
		} `json:"customer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Customer.Number == "" {
		writePlatformError(w, http.StatusBadRequest, "customer.number is required")
		return
	}
	if _, ok := s.state.assistant(in.AssistantID); !ok {
		writePlatformError(w, http.StatusBadRequest, "assistant does not exist")
		return
	}
	writeJSON(w, http.StatusCreated, s.state.recordCall(in.AssistantID, in.Customer.Number))
}

func (s *server) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var in struct {
		To      []string `json:"to"`
		From    string   `json:"from"`
		Subject string   `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || len(in.To) == 0 || in.From == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"name": "validation_error", "message": "to and from are required"})
		return
	}
	if !s.injectFault(w, r, func(w http.ResponseWriter, status int, msg string) {
		writeJSON(w, status, map[string]string{"name": "application_error", "message": msg})
	}) {
		return
	}
	e := s.state.recordEmail(in.To, in.Subject)
	writeJSON(w, http.StatusOK, map[string]string{"id": e.ID})
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	writeJSON(w, http.StatusOK, s.state)
}
