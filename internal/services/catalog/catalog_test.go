package catalog

import (
	"errors"
	"testing"
)

func TestResolveKnownProduct(t *testing.T) {
	c := New(map[string]Entry{
		"100_tokens": {ContractAddress: "0x33D1a2bC47590566Bd971230E0dA7c2295E6cc50", Amount: "100"},
		"500_tokens": {ContractAddress: "0x33D1a2bC47590566Bd971230E0dA7c2295E6cc50", Amount: "500"},
	})

	reward, err := c.Resolve("100_tokens")
	if err != nil {
		t.Fatalf("resolve known product: %v", err)
	}
	if reward.Amount != "100" {
		t.Fatalf("unexpected amount: %s", reward.Amount)
	}
	if reward.ContractAddress != "0x33D1a2bC47590566Bd971230E0dA7c2295E6cc50" {
		t.Fatalf("unexpected contract: %s", reward.ContractAddress)
	}
}

func TestResolveUnknownProduct(t *testing.T) {
	c := New(map[string]Entry{
		"100_tokens": {ContractAddress: "0xabc", Amount: "100"},
	})

	if _, err := c.Resolve("9000_tokens"); !errors.Is(err, ErrUnknownProduct) {
		t.Fatalf("expected ErrUnknownProduct, got %v", err)
	}
}

func TestNewSkipsBlankProductIDs(t *testing.T) {
	c := New(map[string]Entry{
		"  ":         {ContractAddress: "0xabc", Amount: "1"},
		"100_tokens": {ContractAddress: "0xabc", Amount: "100"},
	})

	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
}
