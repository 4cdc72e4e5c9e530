package pricing

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// Column positions in the distributor's price book. The header text changes
// between releases; the positions do not.
const (
	catalogueIDColumn = 3 // 4th column: GTIN
	basePriceColumn   = 8 // 9th column: base price
)

// FlatFileRecord is one price-book row.
type FlatFileRecord struct {
	CatalogueID string
	BasePrice   decimal.Decimal
}

// PriceBook looks up base prices by catalogue identifier.
type PriceBook interface {
	Lookup(ctx context.Context, catalogueID string) (FlatFileRecord, error)
}

// CSVPriceBook reads a delimited price book from disk. Each lookup opens its
// own handle, so concurrent lookups need no locking.
type CSVPriceBook struct {
	path string
}

// NewCSVPriceBook creates a price book backed by the file at path.
func NewCSVPriceBook(path string) *CSVPriceBook {
	return &CSVPriceBook{path: path}
}

// Path returns the backing file path.
func (b *CSVPriceBook) Path() string { return b.path }

// Lookup scans the book for the first row whose catalogue column equals
// catalogueID exactly.
func (b *CSVPriceBook) Lookup(ctx context.Context, catalogueID string) (FlatFileRecord, error) {
	f, err := os.Open(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FlatFileRecord{}, fmt.Errorf("%w: price book file not found at %s", ErrConfig, b.path)
		}
		return FlatFileRecord{}, fmt.Errorf("%w: opening price book: %v", ErrConfig, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return FlatFileRecord{}, fmt.Errorf("%w: price book %s is empty", ErrConfig, b.path)
		}
		return FlatFileRecord{}, fmt.Errorf("%w: reading price book header: %v", ErrConfig, err)
	}
	if len(header) <= basePriceColumn {
		return FlatFileRecord{}, fmt.Errorf("%w: expected at least %d columns in price book, found %d",
			ErrConfig, basePriceColumn+1, len(header))
	}

	for {
		if err := ctx.Err(); err != nil {
			return FlatFileRecord{}, err
		}
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			// A broken row only matters if it is the one being priced.
			continue
		}
		if err != nil {
			return FlatFileRecord{}, fmt.Errorf("%w: reading price book: %v", ErrDataIntegrity, err)
		}
		if len(row) <= catalogueIDColumn || row[catalogueIDColumn] != catalogueID {
			continue
		}

		var raw string
		if len(row) > basePriceColumn {
			raw = row[basePriceColumn]
		}
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return FlatFileRecord{}, fmt.Errorf("%w: invalid base price value %q for GTIN %s",
				ErrDataIntegrity, raw, catalogueID)
		}
		return FlatFileRecord{CatalogueID: catalogueID, BasePrice: price}, nil
	}

	return FlatFileRecord{}, fmt.Errorf("%w: no price-book entry for GTIN %s", ErrNotFound, catalogueID)
}
