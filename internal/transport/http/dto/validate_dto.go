package dto

import "encoding/json"

type ValidateRequest struct {
	Receipt   ReceiptEnvelope `json:"receipt"`
	ToAddress string          `json:"toAddress"`
}

// ReceiptEnvelope keeps the store payload raw; the pipeline's classifier
// decides which store it came from.
type ReceiptEnvelope struct {
	ReceiptData json.RawMessage `json:"receiptData"`
}

// ValidationMessage is the error body of the validate endpoint.
type ValidationMessage struct {
	Message string `json:"message"`
}
