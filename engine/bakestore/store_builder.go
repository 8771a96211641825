package bakestore

import "github.com/Carmen-Shannon/oxy-vat/engine/vat"

// StoreBuilderOption is a functional option applied to a store during construction via NewStore.
type StoreBuilderOption func(*store)

// WithFormat sets the encoding new documents are saved in. Defaults to JSON.
//
// Parameters:
//   - format: the document format
//
// Returns:
//   - StoreBuilderOption: a function that applies the format option to a store
func WithFormat(format vat.Format) StoreBuilderOption {
	return func(s *store) {
		s.format = format
	}
}
