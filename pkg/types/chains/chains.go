package chains

import (
	"context"
	"fmt"

	"awakenfetch/pkg/types/ledger"

	"github.com/pkg/errors"
)

var (
	ErrInvalidAddress   = errors.New("invalid address")
	ErrUnsupportedChain = errors.New("unsupported chain")
)

// Info is the immutable metadata of a chain adapter.
type Info struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Ticker       string `json:"ticker"`
	PerpsCapable bool   `json:"perpsCapable"`
	ExplorerBase string `json:"explorerBase,omitempty"`
}

type Adapter interface {
	Info() Info
	ValidateAddress(address string) bool
	// FetchTransactions returns the classified history sorted ascending by date.
	// An address that fails ValidateAddress is rejected before any network call.
	FetchTransactions(ctx context.Context, address string, opts ledger.FetchOptions) ([]ledger.Transaction, error)
	ToAwakenCSV(txs []ledger.Transaction) string
	ExplorerURL(txHash string) string
}

type PerpsAdapter interface {
	Adapter
	FetchPerpTransactions(ctx context.Context, address string, opts ledger.FetchOptions) ([]ledger.PerpTransaction, error)
	ToAwakenPerpsCSV(txs []ledger.PerpTransaction) string
}

type InvalidAddressError struct {
	Chain   string
	Address string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid %s address: %q", e.Chain, e.Address)
}

func (e *InvalidAddressError) Is(target error) bool {
	return target == ErrInvalidAddress
}

func NewInvalidAddressError(chain, address string) error {
	return &InvalidAddressError{Chain: chain, Address: address}
}

func UnsupportedChainError(chainID string) error {
	return errors.Wrapf(ErrUnsupportedChain, "chain %q", chainID)
}
