package notifications

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cinevault/cinevault-backend/pkg/config"
)

func TestConfirmationTemplate(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := confirmationTmpl.Execute(&buf, OrderConfirmation{
		OrderID: "8400e28d",
		Amount:  decimal.RequireFromString("19.98"),
		Movies:  []string{"Solaris", "Mirror"},
		PaidAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("execute template: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"8400e28d", "$19.98", "- Solaris", "- Mirror"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered email missing %q:\n%s", want, out)
		}
	}
}

func testEmailConfig(host string) config.EmailConfig {
	return config.EmailConfig{Hostname: host, Port: 587, From: "noreply@cinevault.io"}
}

func TestNewSMTPSenderValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewSMTPSender(testEmailConfig(""), nil); err == nil {
		t.Fatal("expected missing host to fail")
	}
	if _, err := NewSMTPSender(testEmailConfig("smtp.example.com"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
