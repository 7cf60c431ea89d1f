package playstore

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/option"

	"github.com/thirdweb-example/unity-iap-server/internal/domain/model"
	verifysvc "github.com/thirdweb-example/unity-iap-server/internal/services/verify"
)

// purchaseStatePurchased is the Play Billing sentinel for a settled purchase.
const purchaseStatePurchased = 0

type PurchaseGetter interface {
	GetProductPurchase(ctx context.Context, packageName, productID, purchaseToken string) (*androidpublisher.ProductPurchase, error)
}

// PublisherClient is the androidpublisher-backed PurchaseGetter, authenticated
// as a service account scoped to the publisher API.
type PublisherClient struct {
	service *androidpublisher.Service
}

func NewPublisherClient(ctx context.Context, credentialsJSON []byte) (*PublisherClient, error) {
	if len(credentialsJSON) == 0 {
		return nil, fmt.Errorf("service account credentials are required")
	}

	service, err := androidpublisher.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(androidpublisher.AndroidpublisherScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create androidpublisher service: %w", err)
	}
	return &PublisherClient{service: service}, nil
}

func (c *PublisherClient) GetProductPurchase(ctx context.Context, packageName, productID, purchaseToken string) (*androidpublisher.ProductPurchase, error) {
	purchase, err := c.service.Purchases.Products.Get(packageName, productID, purchaseToken).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get product purchase: %w", err)
	}
	return purchase, nil
}

// Verifier confirms a claimed Play Billing purchase against the Play
// Developer API.
type Verifier struct {
	purchases PurchaseGetter
	freshness time.Duration
	now       func() time.Time
}

func NewVerifier(purchases PurchaseGetter, freshness time.Duration) *Verifier {
	if freshness <= 0 {
		freshness = 5 * time.Minute
	}
	return &Verifier{
		purchases: purchases,
		freshness: freshness,
		now:       time.Now,
	}
}

// Verify checks purchase state, freshness and order identity, in that order.
// All failures are *verify.Error values; provider faults are never retried.
func (v *Verifier) Verify(ctx context.Context, receipt model.GooglePlayReceiptData) error {
	if v.purchases == nil {
		return verifysvc.Wrap(verifysvc.ReasonProviderUnavailable,
			fmt.Errorf("publisher client is not configured"))
	}

	purchase, err := v.purchases.GetProductPurchase(ctx, receipt.PackageName, receipt.ProductID, receipt.PurchaseToken)
	if err != nil {
		return verifysvc.Wrap(verifysvc.ReasonProviderUnavailable, err)
	}
	if purchase == nil {
		return verifysvc.Wrap(verifysvc.ReasonProviderUnavailable,
			fmt.Errorf("empty purchase response"))
	}

	if purchase.PurchaseState != purchaseStatePurchased {
		return verifysvc.Fail(verifysvc.ReasonInvalidPurchaseState)
	}

	purchasedAt := time.UnixMilli(purchase.PurchaseTimeMillis)
	if v.now().Sub(purchasedAt) > v.freshness {
		return verifysvc.Fail(verifysvc.ReasonPurchaseTooOld)
	}

	if purchase.OrderId != receipt.OrderID {
		return verifysvc.Fail(verifysvc.ReasonOrderMismatch)
	}

	return nil
}
