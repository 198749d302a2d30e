package fetch

import (
	"fmt"
	"math/big"

	"github.com/yourorg/router-providers/internal/model"
	"github.com/yourorg/router-providers/internal/provider"
)

// Heuristic gas costs of a V3 swap
const (
	BaseSwapCost    uint64 = 2_000
	CostPerHop      uint64 = 80_000
	CostPerInitTick uint64 = 31_000
)

// GasModelFactory builds a gas model for the current gas price
type GasModelFactory interface {
	Build(price model.GasPrice) (*GasModel, error)
}

// HeuristicGasModelFactory prices routes from their shape rather than by simulation
type HeuristicGasModelFactory struct {
	Base    uint64
	PerHop  uint64
	PerTick uint64
}

var _ GasModelFactory = HeuristicGasModelFactory{}

// NewHeuristicGasModelFactory uses the default V3 swap costs
func NewHeuristicGasModelFactory() HeuristicGasModelFactory {
	return HeuristicGasModelFactory{Base: BaseSwapCost, PerHop: CostPerHop, PerTick: CostPerInitTick}
}

// Build implements GasModelFactory
func (f HeuristicGasModelFactory) Build(price model.GasPrice) (*GasModel, error) {
	if price.Wei == nil || price.Wei.Sign() <= 0 {
		return nil, fmt.Errorf("gas model needs a positive gas price: %w", provider.ErrConfiguration)
	}
	return &GasModel{factory: f, price: new(big.Int).Set(price.Wei)}, nil
}

// GasModel estimates the gas a route consumes and what it costs
type GasModel struct {
	factory HeuristicGasModelFactory
	price   *big.Int
}

// EstimateGas returns the gas units for a route crossing ticksCrossed initialized ticks per pool
func (m *GasModel) EstimateGas(route model.Route, ticksCrossed []uint32) uint64 {
	gas := m.factory.Base + uint64(route.Hops())*m.factory.PerHop
	for _, t := range ticksCrossed {
		gas += uint64(t) * m.factory.PerTick
	}
	return gas
}

// EstimateCost returns the cost of a quoted route in wei
func (m *GasModel) EstimateCost(q model.Quote) *big.Int {
	gas := m.EstimateGas(q.Request.Route, q.InitializedTicksCrossed)
	return new(big.Int).Mul(new(big.Int).SetUint64(gas), m.price)
}

// GasPrice returns the price the model was built with
func (m *GasModel) GasPrice() *big.Int {
	return new(big.Int).Set(m.price)
}
