package crypto

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// Well-known throwaway key (hardhat account #0).
const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
const testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func init() {
	pbkdf2Iterations = 1000
}

func TestSignerAddress(t *testing.T) {
	s, err := NewSigner(testKey)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	if got := s.Address().Hex(); got != testAddress {
		t.Fatalf("address = %s, want %s", got, testAddress)
	}
}

func TestSignRequestRoundTrip(t *testing.T) {
	s, err := NewSigner(testKey)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	body := []byte(`{"epoch":3,"amount":100}`)
	req, _ := http.NewRequest(http.MethodPost, "http://localhost/api/v1/bets/bull", nil)
	if err := s.SignRequest(req, body, 1_700_000_000); err != nil {
		t.Fatalf("sign: %v", err)
	}
	ts, _ := strconv.ParseInt(req.Header.Get(HeaderTimestamp), 10, 64)

	addr, err := VerifyRequest(req.Header.Get(HeaderAddress), req.Header.Get(HeaderSignature),
		req.Method, req.URL.Path, ts, body)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if addr.Hex() != testAddress {
		t.Fatalf("recovered %s", addr.Hex())
	}

	tests := []struct {
		name  string
		path  string
		body  []byte
		ts    int64
		claim string
	}{
		{"tampered body", req.URL.Path, []byte(`{"epoch":3,"amount":1000}`), ts, testAddress},
		{"other path", "/api/v1/claims", body, ts, testAddress},
		{"replayed timestamp", req.URL.Path, body, ts + 1, testAddress},
		{"wrong claimed address", req.URL.Path, body, ts, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"},
		{"garbage address", req.URL.Path, body, ts, "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyRequest(tt.claim, req.Header.Get(HeaderSignature), http.MethodPost, tt.path, tt.ts, tt.body)
			if !errors.Is(err, ErrBadSignature) {
				t.Fatalf("expected ErrBadSignature, got %v", err)
			}
		})
	}
}

func TestRecoverRejectsMalformed(t *testing.T) {
	for _, sig := range []string{"", "0x1234", "not-hex"} {
		if _, err := Recover([]byte("x"), sig); !errors.Is(err, ErrBadSignature) {
			t.Errorf("Recover(%q) err = %v", sig, err)
		}
	}
}

func TestAPIKeyAuth(t *testing.T) {
	auth := APIKeyAuth{Key: "keeper", Secret: "s3cret"}
	h := auth.Headers("POST", "/api/v1/rounds/execute", nil, 1_700_000_000)

	if !auth.Verify(h[HeaderAPIKey], h[HeaderAPISignature], "POST", "/api/v1/rounds/execute", nil, 1_700_000_000) {
		t.Fatal("valid signature rejected")
	}
	if auth.Verify(h[HeaderAPIKey], h[HeaderAPISignature], "POST", "/api/v1/pause", nil, 1_700_000_000) {
		t.Fatal("signature accepted for another path")
	}
	if auth.Verify("other", h[HeaderAPISignature], "POST", "/api/v1/rounds/execute", nil, 1_700_000_000) {
		t.Fatal("wrong key accepted")
	}
	if (APIKeyAuth{}).Verify("", "", "GET", "/", nil, 0) {
		t.Fatal("empty credential accepted")
	}
	if got := auth.String(); got != "APIKeyAuth{key=keep****, secret=s3cr****}" {
		t.Fatalf("String() = %q", got)
	}
}

func TestEncryptedKeyFile(t *testing.T) {
	blob, err := EncryptKey(testKey, "hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	path := filepath.Join(t.TempDir(), "operator.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Address().Hex() != testAddress {
		t.Fatalf("address = %s", s.Address().Hex())
	}

	if _, err := LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "wrong"}); err == nil {
		t.Fatal("wrong password accepted")
	}
	if _, err := LoadSigner(KeyConfig{}); err == nil {
		t.Fatal("empty config accepted")
	}
}
