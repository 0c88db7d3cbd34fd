package util

import (
	"strings"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, region, want string
		wantErr          bool
	}{
		{in: "+39 02 1234 5678", region: "IT", want: "+390212345678"},
		{in: "02 1234 5678", region: "it", want: "+390212345678"},
		{in: "+1 415 555 2671", region: "IT", want: "+14155552671"},
		{in: "", region: "IT", wantErr: true},
		{in: "12", region: "IT", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.in, tt.region)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("NormalizePhone(%q) expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NormalizePhone(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIDsArePrefixedAndUnique(t *testing.T) {
	a, b := NewOrderID(), NewOrderID()
	if !strings.HasPrefix(a, "ord_") || a == b {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
	if !strings.HasPrefix(NewPendingID(), "pnd_") || !strings.HasPrefix(NewNotificationID(), "ntf_") {
		t.Fatalf("unexpected prefixes")
	}
}

func TestRenderTemplate(t *testing.T) {
	got := RenderTemplate("Ciao {name}, ordine {order}", map[string]string{"name": "Ada", "order": "ord_1"})
	if got != "Ciao Ada, ordine ord_1" {
		t.Fatalf("got %q", got)
	}
}
