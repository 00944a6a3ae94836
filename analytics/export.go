package analytics

import (
	"fmt"
	"io"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// SnapshotRow is the columnar shape written by ExportParquet, one row per
// pool snapshot taken at export time (spec §4.7/§6.4's analytics surface).
type SnapshotRow struct {
	PoolAddress  string  `parquet:"name=pool_address, type=BYTE_ARRAY, convertedtype=UTF8"`
	TokenA       string  `parquet:"name=token_a, type=BYTE_ARRAY, convertedtype=UTF8"`
	TokenB       string  `parquet:"name=token_b, type=BYTE_ARRAY, convertedtype=UTF8"`
	TVL          float64 `parquet:"name=tvl, type=DOUBLE"`
	TVLKnown     bool    `parquet:"name=tvl_known, type=BOOLEAN"`
	Volume24h    float64 `parquet:"name=volume_24h, type=DOUBLE"`
	Volume24hOK  bool    `parquet:"name=volume_24h_known, type=BOOLEAN"`
	APYPercent   float64 `parquet:"name=apy_percent, type=DOUBLE"`
	APYKnown     bool    `parquet:"name=apy_known, type=BOOLEAN"`
	GeneratedUTC string  `parquet:"name=generated_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ToRow converts a Snapshot into its exportable row, rendering rationals as
// float64; the repository and pool packages keep exact big.Rat/uint256
// precision, but the analytics export is a reporting artifact, not a
// ledger-consistency surface.
func (s Snapshot) ToRow(generatedAt time.Time) SnapshotRow {
	row := SnapshotRow{
		PoolAddress:  s.PoolAddress,
		TokenA:       s.TokenA,
		TokenB:       s.TokenB,
		TVLKnown:     s.TVLKnown,
		Volume24hOK:  s.Volume24hKnown,
		APYKnown:     s.APYKnown,
		GeneratedUTC: generatedAt.UTC().Format(time.RFC3339),
	}
	if s.TVLKnown {
		row.TVL, _ = s.TVL.Float64()
	}
	if s.Volume24hKnown {
		row.Volume24h, _ = s.Volume24h.Float64()
	}
	if s.APYKnown {
		row.APYPercent, _ = s.APY.Float64()
	}
	return row
}

// ExportParquet writes rows as a Snappy-compressed parquet file to w (spec's
// analytics export, backing the admin /admin/analytics/export endpoint).
func ExportParquet(w io.Writer, rows []SnapshotRow) error {
	fw := writerfile.NewWriterFile(w)
	pw, err := writer.NewParquetWriter(fw, new(SnapshotRow), 1)
	if err != nil {
		return fmt.Errorf("analytics: create parquet writer: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		r := row
		if err := pw.Write(&r); err != nil {
			return fmt.Errorf("analytics: write row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("analytics: finalize parquet file: %w", err)
	}
	return nil
}
