package catalog

import (
	"errors"
	"strings"

	"github.com/thirdweb-example/unity-iap-server/internal/domain/model"
)

var ErrUnknownProduct = errors.New("product has no reward")

// Entry describes the reward granted for one product ID.
type Entry struct {
	ContractAddress string
	Amount          string
}

// Catalog is the immutable product-to-reward mapping, fixed at construction.
// It is an explicit value passed into the pipeline, never package state.
type Catalog struct {
	rewards map[string]model.Reward
}

func New(entries map[string]Entry) *Catalog {
	rewards := make(map[string]model.Reward, len(entries))
	for productID, entry := range entries {
		productID = strings.TrimSpace(productID)
		if productID == "" {
			continue
		}
		rewards[productID] = model.Reward{
			ContractAddress: strings.TrimSpace(entry.ContractAddress),
			Amount:          strings.TrimSpace(entry.Amount),
		}
	}
	return &Catalog{rewards: rewards}
}

func (c *Catalog) Resolve(productID string) (model.Reward, error) {
	reward, ok := c.rewards[strings.TrimSpace(productID)]
	if !ok {
		return model.Reward{}, ErrUnknownProduct
	}
	return reward, nil
}

func (c *Catalog) Len() int {
	return len(c.rewards)
}
