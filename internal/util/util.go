package util

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

func newID(prefix string) string {
	// ULID is sortable (nice for DB indexes and dashboards)
	t := time.Now().UTC()
	return prefix + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NewOrderID() string        { return newID("ord_") }
func NewPendingID() string      { return newID("pnd_") }
func NewNotificationID() string { return newID("ntf_") }

// Very simple {var} replacement, used for prompts and email bodies.
func RenderTemplate(body string, vars map[string]string) string {
	out := body
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
