package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestExecuteRoundTrip(t *testing.T) {
	var gotReq ExecRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute" {
			t.Errorf("path = %s, want /execute", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ExecResult{Stdout: "4\n", ExitCode: 0, ExecutionTimeMS: 12})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	res, err := client.Execute(context.Background(), ExecRequest{Language: "python", Source: "print(2+2)", Stdin: ""})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if gotReq.Language != "python" || gotReq.Source != "print(2+2)" {
		t.Errorf("request not forwarded: %+v", gotReq)
	}
	if res.Stdout != "4\n" || res.ExecutionTimeMS != 12 {
		t.Errorf("result = %+v", res)
	}
}

func TestExecuteNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sandbox overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	if _, err := client.Execute(context.Background(), ExecRequest{Language: "go", Source: "package main"}); err == nil {
		t.Fatal("expected error for 503 response")
	}
}
