package model

// Reward is the on-chain grant attached to a purchasable product. Amount is a
// decimal string as expected by the minting engine.
type Reward struct {
	ContractAddress string
	Amount          string
}
