package stripe

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/cinevault/cinevault-backend/pkg/config"
)

func TestAmountToCents(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		amount  string
		want    int64
		wantErr bool
	}{
		{name: "whole dollars", amount: "12.00", want: 1200},
		{name: "cents", amount: "9.99", want: 999},
		{name: "zero", amount: "0", wantErr: true},
		{name: "negative", amount: "-4.50", wantErr: true},
		{name: "sub-cent", amount: "1.005", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AmountToCents(decimal.RequireFromString(tc.amount))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tc.amount)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCentsToAmountRoundTrip(t *testing.T) {
	t.Parallel()

	amount := decimal.RequireFromString("1337.42")
	cents, err := AmountToCents(amount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := CentsToAmount(cents); !got.Equal(amount) {
		t.Fatalf("round trip mismatch: %s != %s", got, amount)
	}
}

func TestNewClientValidatesKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_live_abc", Secret: "whsec_x", Env: "test"}, nil)
	if err == nil {
		t.Fatal("expected live key in test env to fail")
	}

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_abc", Secret: "", Env: "test"}, nil)
	if err == nil {
		t.Fatal("expected missing signing secret to fail")
	}

	c, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_test_abc", Secret: "whsec_x", Env: ""}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Environment() != "test" {
		t.Fatalf("empty env should default to test, got %q", c.Environment())
	}
}
