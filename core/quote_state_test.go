package core

import "testing"

func TestCanTransition_AllPairs(t *testing.T) {
	statuses := []QuoteStatus{QuoteStatusOpen, QuoteStatusSent, QuoteStatusAccepted, QuoteStatusRejected}
	allowed := map[[2]QuoteStatus]bool{
		{QuoteStatusOpen, QuoteStatusSent}:     true,
		{QuoteStatusSent, QuoteStatusAccepted}: true,
		{QuoteStatusSent, QuoteStatusRejected}: true,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]QuoteStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestQuoteStatus_Terminal(t *testing.T) {
	if QuoteStatusOpen.Terminal() || QuoteStatusSent.Terminal() {
		t.Fatalf("open and sent must not be terminal")
	}
	if !QuoteStatusAccepted.Terminal() || !QuoteStatusRejected.Terminal() {
		t.Fatalf("accepted and rejected must be terminal")
	}
	if QuoteStatus("archived").Valid() {
		t.Fatalf("unexpected valid status")
	}
}
