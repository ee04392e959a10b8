package secret

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPairEncodeParseRoundTrip(t *testing.T) {
	codec, _, _, _ := newTestCodec(t)

	pair, err := codec.Issue(context.Background(), RememberMe, "acct-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	parsed, err := Parse(pair.Encode())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Selector() != pair.Selector() || parsed.Token() != pair.Token() {
		t.Fatal("parsed pair differs from issued pair")
	}
	if _, err := codec.VerifyPair(context.Background(), RememberMe, parsed); err != nil {
		t.Fatalf("VerifyPair(parsed): %v", err)
	}
}

func TestPairStringRedactsToken(t *testing.T) {
	codec, _, _, _ := newTestCodec(t)

	pair, err := codec.Issue(context.Background(), EmailVerification, "acct-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if strings.Contains(pair.String(), pair.Token()) {
		t.Fatal("String leaked the raw token")
	}
	if !strings.Contains(pair.String(), pair.Selector()) {
		t.Fatal("String should keep the selector for correlation")
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"no-separator",
		"short:short",
		strings.Repeat("A", 22) + ":" + strings.Repeat("!", 43),
		strings.Repeat("A", 22) + ":",
	} {
		if _, err := Parse(in); !errors.Is(err, ErrInvalid) {
			t.Fatalf("Parse(%q): expected ErrInvalid, got %v", in, err)
		}
	}
}

func TestZeroPair(t *testing.T) {
	var p Pair
	if !p.IsZero() || p.Encode() != "" {
		t.Fatal("expected zero pair to encode empty")
	}
}
