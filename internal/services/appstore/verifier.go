package appstore

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/thirdweb-example/unity-iap-server/internal/domain/model"
	verifysvc "github.com/thirdweb-example/unity-iap-server/internal/services/verify"
)

const (
	ProductionBaseURL = "https://api.storekit.itunes.apple.com"
	SandboxBaseURL    = "https://api.storekit-sandbox.itunes.apple.com"

	clientTokenAudience = "appstoreconnect-v1"
	clientTokenTTL      = 5 * time.Minute
)

type Config struct {
	IssuerID  string
	KeyID     string
	BundleID  string
	BaseURL   string
	Freshness time.Duration
}

// Verifier confirms a claimed StoreKit transaction against the App Store
// Server API. The signed transaction payload is only trusted after its JWS
// signature verifies against the x5c leaf certificate.
type Verifier struct {
	cfg        Config
	privateKey *ecdsa.PrivateKey
	roots      *x509.CertPool
	httpClient *http.Client
	now        func() time.Time
}

// NewVerifier builds a verifier. roots may be nil, in which case the x5c
// chain is not anchored and only the leaf signature is checked.
func NewVerifier(cfg Config, privateKey *ecdsa.PrivateKey, roots *x509.CertPool, httpClient *http.Client) *Verifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ProductionBaseURL
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = 5 * time.Minute
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Verifier{
		cfg:        cfg,
		privateKey: privateKey,
		roots:      roots,
		httpClient: httpClient,
		now:        time.Now,
	}
}

type transactionClaims struct {
	ProductID            string `json:"productId"`
	TransactionID        string `json:"transactionId"`
	OriginalTransaction  string `json:"originalTransactionId"`
	Quantity             int64  `json:"quantity"`
	PurchaseDateMillis   int64  `json:"purchaseDate"`
	SignedDateMillis     int64  `json:"signedDate"`
	BundleID             string `json:"bundleId"`
	jwt.RegisteredClaims
}

type transactionResponse struct {
	SignedTransactionInfo string `json:"signedTransactionInfo"`
}

// Verify fetches the signed transaction for the claimed transaction ID and
// checks product, quantity and purchase freshness against the claim. All
// failures are *verify.Error values.
func (v *Verifier) Verify(ctx context.Context, receipt model.AppleReceiptData) error {
	if strings.TrimSpace(receipt.TransactionID) == "" {
		return verifysvc.Fail(verifysvc.ReasonTransactionNotFound)
	}

	signed, err := v.fetchSignedTransaction(ctx, receipt.TransactionID)
	if err != nil {
		return err
	}

	claims, err := v.decodeSignedTransaction(signed)
	if err != nil {
		return err
	}

	if claims.ProductID != receipt.ProductID {
		return verifysvc.Fail(verifysvc.ReasonProductMismatch)
	}
	if claims.Quantity != receipt.Quantity {
		return verifysvc.Fail(verifysvc.ReasonQuantityMismatch)
	}

	purchasedAt := time.UnixMilli(claims.PurchaseDateMillis)
	if v.now().Sub(purchasedAt) > v.cfg.Freshness {
		return verifysvc.Fail(verifysvc.ReasonPurchaseTooOld)
	}

	return nil
}

func (v *Verifier) fetchSignedTransaction(ctx context.Context, transactionID string) (string, error) {
	token, err := v.clientToken()
	if err != nil {
		return "", verifysvc.Wrap(verifysvc.ReasonProviderUnavailable, err)
	}

	endpoint := strings.TrimRight(v.cfg.BaseURL, "/") + "/inApps/v1/transactions/" + url.PathEscape(transactionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", verifysvc.Wrap(verifysvc.ReasonProviderUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", verifysvc.Wrap(verifysvc.ReasonProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", verifysvc.Fail(verifysvc.ReasonTransactionNotFound)
	case resp.StatusCode != http.StatusOK:
		return "", verifysvc.Wrap(verifysvc.ReasonProviderUnavailable,
			fmt.Errorf("transaction lookup returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", verifysvc.Wrap(verifysvc.ReasonProviderUnavailable, err)
	}

	var payload transactionResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", verifysvc.Wrap(verifysvc.ReasonProviderUnavailable, err)
	}
	if strings.TrimSpace(payload.SignedTransactionInfo) == "" {
		return "", verifysvc.Fail(verifysvc.ReasonTransactionNotFound)
	}

	return payload.SignedTransactionInfo, nil
}

// clientToken signs the ES256 App Store Server API token (kid header,
// iss/aud/bid claims).
func (v *Verifier) clientToken() (string, error) {
	if v.privateKey == nil {
		return "", fmt.Errorf("signing key is not configured")
	}

	now := v.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": v.cfg.IssuerID,
		"iat": now.Unix(),
		"exp": now.Add(clientTokenTTL).Unix(),
		"aud": clientTokenAudience,
		"bid": v.cfg.BundleID,
	})
	token.Header["kid"] = v.cfg.KeyID

	signed, err := token.SignedString(v.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign client token: %w", err)
	}
	return signed, nil
}

// decodeSignedTransaction verifies the JWS against its embedded certificate
// before any claim is read.
func (v *Verifier) decodeSignedTransaction(signed string) (*transactionClaims, error) {
	claims := &transactionClaims{}
	token, err := jwt.ParseWithClaims(signed, claims, v.signingCertificate,
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}))
	if err != nil || token == nil || !token.Valid {
		return nil, verifysvc.Wrap(verifysvc.ReasonSignatureInvalid, err)
	}
	return claims, nil
}

// signingCertificate extracts the x5c leaf, validates the chain against the
// configured roots when present, and returns the leaf public key.
func (v *Verifier) signingCertificate(token *jwt.Token) (interface{}, error) {
	raw, ok := token.Header["x5c"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("signed transaction has no x5c chain")
	}

	certs := make([]*x509.Certificate, 0, len(raw))
	for _, entry := range raw {
		encoded, ok := entry.(string)
		if !ok {
			return nil, fmt.Errorf("malformed x5c entry")
		}
		der, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode x5c certificate: %w", err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parse x5c certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	leaf := certs[0]
	if v.roots != nil {
		intermediates := x509.NewCertPool()
		for _, cert := range certs[1:] {
			intermediates.AddCert(cert)
		}
		if _, err := leaf.Verify(x509.VerifyOptions{
			Roots:         v.roots,
			Intermediates: intermediates,
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		}); err != nil {
			return nil, fmt.Errorf("verify x5c chain: %w", err)
		}
	}

	key, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("x5c leaf key is not ECDSA")
	}
	return key, nil
}
