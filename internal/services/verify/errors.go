package verify

import "fmt"

// Reason is the stable, user-visible kind of a verification failure.
type Reason string

const (
	ReasonProductMismatch      Reason = "ProductMismatch"
	ReasonQuantityMismatch     Reason = "QuantityMismatch"
	ReasonPurchaseTooOld       Reason = "PurchaseTooOld"
	ReasonOrderMismatch        Reason = "OrderMismatch"
	ReasonInvalidPurchaseState Reason = "InvalidPurchaseState"
	ReasonTransactionNotFound  Reason = "TransactionNotFound"
	ReasonSignatureInvalid     Reason = "SignatureInvalid"
	ReasonProviderUnavailable  Reason = "ProviderUnavailable"
)

// Error is a provider verification failure. Reason is safe to surface to
// callers; detail stays server side.
type Error struct {
	Reason Reason
	detail error
}

func Fail(reason Reason) *Error {
	return &Error{Reason: reason}
}

func Wrap(reason Reason, detail error) *Error {
	return &Error{Reason: reason, detail: detail}
}

func (e *Error) Error() string {
	if e.detail != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.detail)
	}
	return string(e.Reason)
}

func (e *Error) Unwrap() error {
	return e.detail
}
