package main

import (
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

type weightedOutcome struct {
	Kind   string
	Weight float64
}

// injectFault applies the configured delay and outcome to a mutating call.
// It returns false after writing a failure response.
func (s *server) injectFault(w http.ResponseWriter, r *http.Request, fail func(w http.ResponseWriter, status int, msg string)) bool {
	if s.cfg.Delay > 0 {
		select {
		case <-r.Context().Done():
			return false
		case <-time.After(s.cfg.Delay):
		}
	}

	status, msg := classifyOutcome(s.nextOutcome())
	switch {
	case status == 0:
		return true
	case status == http.StatusGatewayTimeout:
		// outlive the caller's timeout so the outcome is unknown to it
		select {
		case <-r.Context().Done():
		case <-time.After(s.cfg.TimeoutDelay):
		}
		fail(w, status, msg)
		return false
	default:
		fail(w, status, msg)
		return false
	}
}

func (s *server) nextOutcome() string {
	switch s.cfg.OutcomeMode {
	case "round_robin":
		idx := atomic.AddUint64(&s.idx, 1) - 1
		return s.cfg.Outcomes[int(idx)%len(s.cfg.Outcomes)]
	case "weighted":
		s.rngMu.Lock()
		ok := s.rng.Float64() <= s.cfg.SuccessRate
		r := s.rng.Float64()
		s.rngMu.Unlock()
		if ok {
			return "ok"
		}
		return pickWeighted(r, s.cfg.FailureWeights)
	case "random":
		s.rngMu.Lock()
		i := s.rng.Intn(len(s.cfg.Outcomes))
		s.rngMu.Unlock()
		return s.cfg.Outcomes[i]
	default:
		return s.cfg.Outcomes[0]
	}
}

// classifyOutcome maps an outcome token to an HTTP failure; status 0 means success.
func classifyOutcome(raw string) (int, string) {
	kind := strings.TrimSpace(raw)
	if i := strings.IndexByte(kind, ':'); i >= 0 {
		kind = kind[:i]
	}
	switch kind {
	case "", "ok", "success":
		return 0, ""
	case "rate_limit", "429":
		return http.StatusTooManyRequests, "rate limited"
	case "bad_request", "400":
		return http.StatusBadRequest, "bad request"
	case "server_error", "500":
		return http.StatusInternalServerError, "server error"
	case "unavailable", "503":
		return http.StatusServiceUnavailable, "service unavailable"
	case "timeout":
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "mock error: " + kind
	}
}

func (s *server) retryBackoff(attempt int) time.Duration {
	base := s.cfg.WebhookRetryBase
	max := s.cfg.WebhookRetryMax
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	if max <= 0 {
		max = 10 * time.Second
	}

	wait := base * time.Duration(1<<attempt)
	if wait > max || wait <= 0 {
		wait = max
	}

	jp := s.cfg.WebhookRetryJitterPct
	if jp <= 0 {
		return wait
	}
	if jp > 100 {
		jp = 100
	}
	delta := int64(wait) * int64(jp) / 100
	if delta <= 0 {
		return wait
	}
	s.rngMu.Lock()
	j := s.rng.Int63n(2*delta+1) - delta
	s.rngMu.Unlock()
	return time.Duration(int64(wait) + j)
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusConflict, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return []string{"ok"}
	}
	return out
}

func parseWeightedOutcomes(s string) []weightedOutcome {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]weightedOutcome, 0, len(parts))
	for _, p := range parts {
		kind, weight, ok := strings.Cut(strings.TrimSpace(p), ":")
		if !ok {
			continue
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(weight), 64)
		if err != nil || w <= 0 {
			continue
		}
		kind = strings.TrimSpace(kind)
		if kind == "" {
			continue
		}
		out = append(out, weightedOutcome{Kind: kind, Weight: w})
	}
	return out
}

func pickWeighted(r float64, items []weightedOutcome) string {
	if len(items) == 0 {
		return "server_error"
	}
	var total float64
	for _, it := range items {
		total += it.Weight
	}
	if total <= 0 {
		return items[0].Kind
	}
	target := r * total
	var cumulative float64
	for _, it := range items {
		cumulative += it.Weight
		if target <= cumulative {
			return it.Kind
		}
	}
	return items[len(items)-1].Kind
}
