package model

import "encoding/json"

// AppleReceiptData is the client-claimed summary of a StoreKit transaction.
// Timestamps are Unix milliseconds.
type AppleReceiptData struct {
	Quantity                      int64  `json:"quantity"`
	ProductID                     string `json:"productID"`
	TransactionID                 string `json:"transactionID"`
	OriginalTransactionIdentifier string `json:"originalTransactionIdentifier"`
	PurchaseDate                  int64  `json:"purchaseDate"`
	OriginalPurchaseDate          int64  `json:"originalPurchaseDate"`
	SubscriptionExpirationDate    int64  `json:"subscriptionExpirationDate"`
	CancellationDate              int64  `json:"cancellationDate"`
	IsFreeTrial                   int    `json:"isFreeTrial"`
	ProductType                   int    `json:"productType"`
	IsIntroductoryPricePeriod     int    `json:"isIntroductoryPricePeriod"`
}

// GooglePlayReceiptData is the client-claimed summary of a Play Billing
// purchase. PurchaseToken is what the Play Developer API is queried with.
type GooglePlayReceiptData struct {
	ProductID     string `json:"productID"`
	OrderID       string `json:"orderID"`
	TransactionID string `json:"transactionID"`
	PackageName   string `json:"packageName"`
	PurchaseToken string `json:"purchaseToken"`
	PurchaseDate  int64  `json:"purchaseDate"`
	PurchaseState int    `json:"purchaseState"`
}

// ReceiptEnvelope carries the raw store payload. Clients do not declare the
// store; the classifier decides the concrete shape.
type ReceiptEnvelope struct {
	ReceiptData json.RawMessage `json:"receiptData"`
}
