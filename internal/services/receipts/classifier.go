package receipts

import (
	"encoding/json"
	"errors"

	"github.com/thirdweb-example/unity-iap-server/internal/domain/model"
)

type Provider string

const (
	ProviderApple  Provider = "apple"
	ProviderGoogle Provider = "google"
)

var ErrAmbiguousReceipt = errors.New("receipt shape matches no known store")

// Classified is the parsed receipt as a tagged union. Exactly one of Apple or
// Google is non-nil.
type Classified struct {
	Provider Provider
	Apple    *model.AppleReceiptData
	Google   *model.GooglePlayReceiptData
}

func (c Classified) ProductID() string {
	switch c.Provider {
	case ProviderApple:
		return c.Apple.ProductID
	case ProviderGoogle:
		return c.Google.ProductID
	default:
		return ""
	}
}

func (c Classified) TransactionID() string {
	switch c.Provider {
	case ProviderApple:
		return c.Apple.TransactionID
	case ProviderGoogle:
		return c.Google.TransactionID
	default:
		return ""
	}
}

// Classify decides the storefront from the payload shape. A purchaseToken is
// the sole Google signal; anything else must at least carry a transaction ID
// to pass as Apple. Envelopes matching neither are rejected rather than
// defaulted to a provider.
func Classify(envelope model.ReceiptEnvelope) (Classified, error) {
	if len(envelope.ReceiptData) == 0 {
		return Classified{}, ErrAmbiguousReceipt
	}

	var probe struct {
		PurchaseToken string `json:"purchaseToken"`
		TransactionID string `json:"transactionID"`
	}
	if err := json.Unmarshal(envelope.ReceiptData, &probe); err != nil {
		return Classified{}, ErrAmbiguousReceipt
	}

	if probe.PurchaseToken != "" {
		var data model.GooglePlayReceiptData
		if err := json.Unmarshal(envelope.ReceiptData, &data); err != nil {
			return Classified{}, ErrAmbiguousReceipt
		}
		return Classified{Provider: ProviderGoogle, Google: &data}, nil
	}

	if probe.TransactionID == "" {
		return Classified{}, ErrAmbiguousReceipt
	}

	var data model.AppleReceiptData
	if err := json.Unmarshal(envelope.ReceiptData, &data); err != nil {
		return Classified{}, ErrAmbiguousReceipt
	}
	return Classified{Provider: ProviderApple, Apple: &data}, nil
}
