package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"crossexchange/internal/domain"
)

// Compile-time interface checks.
var _ PriceStore = (*ParquetPriceStore)(nil)
var _ PriceWriter = (*ParquetPriceStore)(nil)
var _ ShareCatalog = (*ParquetPriceStore)(nil)

// ParquetPriceStore archives share prices as Parquet files on disk, one file
// per symbol per UTC day.
type ParquetPriceStore struct {
	DataDir string

	mu sync.Mutex // serialises read-merge-write of day files
}

// NewParquetPriceStore creates a ParquetPriceStore rooted at dataDir.
func NewParquetPriceStore(dataDir string) *ParquetPriceStore {
	return &ParquetPriceStore{DataDir: dataDir}
}

// PriceRecord is the Parquet schema for share prices. Price is kept as its
// decimal string so no precision is lost.
type PriceRecord struct {
	Symbol    string `parquet:"symbol"`
	Timestamp int64  `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Price     string `parquet:"price"`
}

// AppendPrice merges rec into the day file for its symbol and timestamp.
//
//	<DataDir>/prices/<SYMBOL>/<YYYY-MM-DD>.parquet
func (s *ParquetPriceStore) AppendPrice(_ context.Context, rec domain.SharePriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.pricePath(rec.Symbol, rec.Timestamp)
	existing, err := readParquetFile[PriceRecord](path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	merged := mergePriceRecords(existing, []PriceRecord{{
		Symbol:    string(rec.Symbol),
		Timestamp: rec.Timestamp.UnixMilli(),
		Price:     rec.Price.String(),
	}})
	if err := writeParquetFile(path, merged); err != nil {
		return fmt.Errorf("writing prices for %s: %w", rec.Symbol, err)
	}
	return nil
}

// QueryPrices reads every day file of symbol.
func (s *ParquetPriceStore) QueryPrices(_ context.Context, symbol domain.Symbol) ([]domain.SharePriceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.dayFiles(symbol)
	if err != nil {
		return nil, err
	}

	var out []domain.SharePriceRecord
	for _, path := range files {
		records, err := readParquetFile[PriceRecord](path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for _, r := range records {
			price, err := decimal.NewFromString(r.Price)
			if err != nil {
				return nil, fmt.Errorf("parsing price %q in %s: %w", r.Price, path, err)
			}
			out = append(out, domain.SharePriceRecord{
				Symbol:    domain.Symbol(r.Symbol),
				Price:     price,
				Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			})
		}
	}
	return out, nil
}

// ShareExists reports whether any day file exists for symbol.
func (s *ParquetPriceStore) ShareExists(_ context.Context, symbol domain.Symbol) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.dayFiles(symbol)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// ListSymbols lists every symbol with archived prices, sorted.
func (s *ParquetPriceStore) ListSymbols(_ context.Context) ([]domain.Symbol, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "prices"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []domain.Symbol
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, domain.Symbol(e.Name()))
		}
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// pricePath returns the day file for symbol at t (UTC date).
func (s *ParquetPriceStore) pricePath(symbol domain.Symbol, t time.Time) string {
	date := t.UTC().Format("2006-01-02")
	return filepath.Join(s.DataDir, "prices", strings.ToUpper(string(symbol)), date+".parquet")
}

// dayFiles lists the day files of symbol in date order. A missing directory
// yields no files.
func (s *ParquetPriceStore) dayFiles(symbol domain.Symbol) ([]string, error) {
	dir := filepath.Join(s.DataDir, "prices", strings.ToUpper(string(symbol)))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".parquet" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergePriceRecords appends incoming to existing and orders the result by
// timestamp. Records with equal timestamps keep their arrival order, so the
// last one appended stays last.
func mergePriceRecords(existing, incoming []PriceRecord) []PriceRecord {
	merged := make([]PriceRecord, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)
	merged = append(merged, incoming...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
