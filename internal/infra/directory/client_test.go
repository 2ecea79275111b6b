package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/Alfahan/sso-sub000/internal/infra/config"
)

func TestFindByNIKSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/employees/3210987654321" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("unexpected authorization header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"nik":"3210987654321","name":"Budi Santoso","email":"budi@corp.example","phone":"+628111222333","username":"budi.santoso"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(config.DirectorySettings{
		BaseURL: server.URL,
		APIKey:  "secret",
	}, zaptest.NewLogger(t))

	record, err := client.FindByNIK(context.Background(), "3210987654321")
	if err != nil {
		t.Fatalf("FindByNIK returned error: %v", err)
	}
	if record == nil {
		t.Fatal("expected a record")
	}
	if record.Username != "budi.santoso" || record.Email != "budi@corp.example" {
		t.Fatalf("record did not round-trip: %+v", record)
	}
}

func TestFindByNIKNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPClient(config.DirectorySettings{BaseURL: server.URL}, zaptest.NewLogger(t))

	record, err := client.FindByNIK(context.Background(), "000")
	if err != nil {
		t.Fatalf("FindByNIK returned error: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record for unknown NIK, got %+v", record)
	}
}

func TestFindByNIKUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(config.DirectorySettings{BaseURL: server.URL}, zaptest.NewLogger(t))

	if _, err := client.FindByNIK(context.Background(), "123"); err == nil {
		t.Fatal("expected error for upstream failure")
	}
}
