package config

import (
	"os"
	"strconv"
	"strings"
)

// Costing policy is selected per deployment, not per ingredient, so menu cost
// computation stays uniform across the catalog.
//
// Env:
// - COSTING_POLICY: latest | weighted_average | fifo (default weighted_average)
// - COSTING_WINDOW_DAYS: trailing purchase window for weighted average (default 90)
const (
	CostingPolicyLatest          = "latest"
	CostingPolicyWeightedAverage = "weighted_average"
	CostingPolicyFifo            = "fifo"

	DefaultCostingWindowDays = 90
)

func GetCostingPolicyName() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("COSTING_POLICY")))
	switch v {
	case CostingPolicyLatest, CostingPolicyFifo:
		return v
	default:
		return CostingPolicyWeightedAverage
	}
}

func GetCostingWindowDays() int {
	v := strings.TrimSpace(os.Getenv("COSTING_WINDOW_DAYS"))
	if v == "" {
		return DefaultCostingWindowDays
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return DefaultCostingWindowDays
	}
	return n
}
