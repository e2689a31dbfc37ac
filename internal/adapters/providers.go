package adapters

import (
	"context"

	"github.com/google/wire"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/adapters/abi"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/adapters/artifacts"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/adapters/blockchain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/adapters/manifest"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/config"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

// ProvideClient dials the configured network. The cleanup closes the connection.
func ProvideClient(cfg *config.RuntimeConfig) (*blockchain.Client, func(), error) {
	client, err := blockchain.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// FSSet provides filesystem-based implementations
var FSSet = wire.NewSet(
	manifest.NewFileRepository,
	wire.Bind(new(usecase.ManifestRepository), new(*manifest.FileRepository)),

	artifacts.NewRepository,
	wire.Bind(new(usecase.ContractRepository), new(*artifacts.Repository)),
	wire.Bind(new(usecase.ValidationDataProvider), new(*artifacts.Repository)),
)

// ABISet provides argument encoding
var ABISet = wire.NewSet(
	abi.NewArgEncoder,
	wire.Bind(new(usecase.ArgumentEncoder), new(*abi.ArgEncoder)),
)

// BlockchainSet provides blockchain-based implementations
var BlockchainSet = wire.NewSet(
	ProvideClient,
	wire.Bind(new(usecase.NetworkProvider), new(*blockchain.Client)),

	blockchain.NewSender,
	wire.Bind(new(usecase.TransactionSender), new(*blockchain.Sender)),
)

// AllAdapters includes all adapter sets
var AllAdapters = wire.NewSet(
	FSSet,
	ABISet,
	BlockchainSet,
)
