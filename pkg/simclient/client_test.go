package simclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
)

func TestTriggerOutageSendsTokenAndPayload(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody outageRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok")
	if err := c.TriggerOutage(context.Background(), "bank_b", 90*time.Second); err != nil {
		t.Fatalf("TriggerOutage returned error: %v", err)
	}
	if gotPath != "POST /ops/outages" {
		t.Fatalf("unexpected request %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotBody.BankID != "bank_b" || gotBody.DurationMS != 90000 {
		t.Fatalf("unexpected payload %+v", gotBody)
	}
}

func TestSetBankStatusDecodesBank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/ops/banks/bank_c/status" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("expected no authorization header without a token")
		}
		var req bankStatusRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(domain.PartnerBank{ID: "bank_c", Name: "Access Bank", Status: req.Status})
	}))
	defer srv.Close()

	bank, err := NewClient(srv.URL, "").SetBankStatus(context.Background(), "bank_c", domain.BankDown)
	if err != nil {
		t.Fatalf("SetBankStatus returned error: %v", err)
	}
	if bank.Status != domain.BankDown || bank.Name != "Access Bank" {
		t.Fatalf("unexpected bank %+v", bank)
	}
}

func TestErrorResponseBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Partner bank not found"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").ListBanks(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "Partner bank not found" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestEmptyBaseURL(t *testing.T) {
	if err := NewClient("  ", "").TriggerSystemIssue(context.Background(), time.Second); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}
