package messaging

import (
	"fmt"
	"strings"
)

// Variant identifies the kind of a delivery channel. Subscriptions are held
// per variant, never per channel instance.
type Variant string

const (
	VariantSMS      Variant = "sms"
	VariantWhatsApp Variant = "whatsapp"
	VariantEmail    Variant = "email"
)

// Variants lists every known variant in registration order.
var Variants = []Variant{VariantSMS, VariantWhatsApp, VariantEmail}

func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case VariantSMS:
		return VariantSMS, nil
	case VariantWhatsApp, "wa":
		return VariantWhatsApp, nil
	case VariantEmail:
		return VariantEmail, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
}

// Label is the human readable channel name used in trace lines.
func (v Variant) Label() string {
	switch v {
	case VariantSMS:
		return "SMS"
	case VariantWhatsApp:
		return "WhatsApp"
	case VariantEmail:
		return "Email"
	default:
		return string(v)
	}
}

func (v Variant) String() string { return string(v) }
