package respcache

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  Hello, World!  ", "hello world"},
		{"What's the capital of France?", "whats the capital of france"},
		{"snake_case stays", "snake_case stays"},
		{"layer-12 feature #4096", "layer12 feature 4096"},
		{"Ünïcode letters are dropped", "ncode letters are dropped"},
		{"\t tabs\nand newlines\n", "tabs\nand newlines"},
		{"?!...", ""},
	}
	for _, tc := range cases {
		if got := normalize(tc.in); got != tc.want {
			t.Errorf("normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestJaccard(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"", "", 0},
		{"a b", "", 0},
		{"a b", "a b", 1},
		{"a a b", "b a", 1},
		{"a b", "a", 0.5},
		{"what is the capital of france", "whats the capital of france", 4.0 / 7.0},
	}
	for _, tc := range cases {
		got := jaccard(tc.a, tc.b)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("jaccard(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestMessagesTextUsesContentOnly(t *testing.T) {
	msgs := []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "define polysemantic"},
	}
	if got := messagesText(msgs); got != "be brief\ndefine polysemantic" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := messagesText(nil); got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
}

func TestFingerprint(t *testing.T) {
	msgs := userMsg("hello")

	h1 := Fingerprint("hello", msgs, "openai", "gpt-4")
	h2 := Fingerprint("hello", userMsg("hello"), "openai", "gpt-4")
	if h1 != h2 {
		t.Fatalf("same input should produce same fingerprint")
	}
	if len(h1) != 16 {
		t.Fatalf("expected 16 chars, got %d (%s)", len(h1), h1)
	}

	others := []string{
		Fingerprint("hello", msgs, "azure", "gpt-4"),
		Fingerprint("hello", msgs, "openai", "gpt-4o"),
		Fingerprint("hello!", msgs, "openai", "gpt-4"),
		Fingerprint("hello", []Message{{Role: "assistant", Content: "hello"}}, "openai", "gpt-4"),
	}
	for i, h := range others {
		if h == h1 {
			t.Errorf("variant %d should change the fingerprint", i)
		}
	}

	if Fingerprint("p", nil, "openai", "gpt-4") != Fingerprint("p", []Message{}, "openai", "gpt-4") {
		t.Fatalf("nil and empty message lists should fingerprint alike")
	}
}
