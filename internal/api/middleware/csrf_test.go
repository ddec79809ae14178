package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eldtechnologies/chatdeck/internal/crypto"
)

func TestCSRF(t *testing.T) {
	signer, err := crypto.NewCSRFSigner("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	token, err := signer.Issue()
	if err != nil {
		t.Fatal(err)
	}
	other, err := signer.Issue()
	if err != nil {
		t.Fatal(err)
	}
	foreign, _ := crypto.NewCSRFSigner("other-secret")
	forged, _ := foreign.Issue()

	h := CSRF(signer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		method string
		cookie string
		header string
		want   int
	}{
		{"safe method", http.MethodGet, "", "", http.StatusNoContent},
		{"matching pair", http.MethodPost, token, token, http.StatusNoContent},
		{"delete matching", http.MethodDelete, token, token, http.StatusNoContent},
		{"missing header", http.MethodPost, token, "", http.StatusForbidden},
		{"missing cookie", http.MethodPost, "", token, http.StatusForbidden},
		{"mismatch", http.MethodPatch, token, other, http.StatusForbidden},
		{"foreign signature", http.MethodPut, forged, forged, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/chats", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(CSRFHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
