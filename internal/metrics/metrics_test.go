package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if scraperDocumentsTotal == nil || scraperRunsTotal == nil || authLoginsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestScraperObservers(t *testing.T) {
	Init()
	before := testutil.ToFloat64(scraperDocumentsTotal.WithLabelValues("processed"))
	ObserveDocument("processed")
	if got := testutil.ToFloat64(scraperDocumentsTotal.WithLabelValues("processed")); got != before+1 {
		t.Errorf("expected processed documents to grow by 1, got %f -> %f", before, got)
	}

	mentionsBefore := testutil.ToFloat64(scraperMentionsTotal)
	ObserveMentions(3)
	ObserveMentions(0)
	if got := testutil.ToFloat64(scraperMentionsTotal); got != mentionsBefore+3 {
		t.Errorf("expected mentions to grow by 3, got %f -> %f", mentionsBefore, got)
	}

	ObserveFetch(120 * time.Millisecond)
	if n := testutil.CollectAndCount(scraperFetchDurationSeconds); n == 0 {
		t.Error("expected fetch histogram to be collected")
	}
}

func TestObserveLogin(t *testing.T) {
	Init()
	before := testutil.ToFloat64(authLoginsTotal.WithLabelValues("invalid"))
	ObserveLogin("invalid")
	if got := testutil.ToFloat64(authLoginsTotal.WithLabelValues("invalid")); got != before+1 {
		t.Errorf("expected invalid logins to grow by 1, got %f -> %f", before, got)
	}
}

func TestObserveRobotsFallback(t *testing.T) {
	Init()
	before := testutil.ToFloat64(scraperRobotsFallbacksTotal)
	ObserveRobotsFallback()
	if got := testutil.ToFloat64(scraperRobotsFallbacksTotal); got != before+1 {
		t.Errorf("expected robots fallbacks to grow by 1, got %f -> %f", before, got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://board.example.gov", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
