package collectors

import (
	"fmt"
	"math/big"
)

// toCkb converts a decimal shannon amount to CKB.
func toCkb(shannons string) (float64, error) {
	v, ok := new(big.Float).SetString(shannons)
	if !ok {
		return 0, fmt.Errorf("invalid capacity %q", shannons)
	}
	f, _ := v.Quo(v, big.NewFloat(shannonsPerCkb)).Float64()
	return f, nil
}
