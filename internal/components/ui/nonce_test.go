package ui

import "testing"

func TestNonce(t *testing.T) {
	n := Nonce("session-a", "sophi_settings")
	if len(n) != 24 {
		t.Fatalf("expected 24 characters, got %d", len(n))
	}
	if n != Nonce("session-a", "sophi_settings") {
		t.Error("nonce must be stable for a session and action")
	}

	tests := []struct {
		name    string
		nonce   string
		session string
		action  string
		want    bool
	}{
		{"matching", n, "session-a", "sophi_settings", true},
		{"other session", n, "session-b", "sophi_settings", false},
		{"other action", n, "session-a", "general", false},
		{"empty nonce", "", "session-a", "sophi_settings", false},
		{"empty session", Nonce("", "sophi_settings"), "", "sophi_settings", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyNonce(tt.nonce, tt.session, tt.action); got != tt.want {
				t.Errorf("VerifyNonce = %v, want %v", got, tt.want)
			}
		})
	}
}
