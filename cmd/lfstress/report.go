package main

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

// RunReport is one row of the parquet run report.
type RunReport struct {
	RunID            string `parquet:"run_id"`
	Structure        string `parquet:"structure"`
	Producers        int32  `parquet:"producers"`
	Consumers        int32  `parquet:"consumers"`
	ItemsPerProducer int32  `parquet:"items_per_producer"`
	Pushed           int64  `parquet:"pushed"`
	Popped           int64  `parquet:"popped"`
	EmptyPops        int64  `parquet:"empty_pops"`
	Duplicates       int64  `parquet:"duplicates"`
	Missing          int64  `parquet:"missing"`
	OrderViolations  int64  `parquet:"order_violations"`
	NodesAllocated   int64  `parquet:"nodes_allocated"`
	NodesFreed       int64  `parquet:"nodes_freed"`
	NodesRecycled    int64  `parquet:"nodes_recycled"`
	NodesLive        int64  `parquet:"nodes_live"`
	StartedUnixNano  int64  `parquet:"started_unix_nano"`
	DurationNanos    int64  `parquet:"duration_nanos"`
	Passed           bool   `parquet:"passed"`
}

// NewRunReport flattens a Result into a report row.
func NewRunReport(res *Result) RunReport {
	return RunReport{
		RunID:            res.RunID,
		Structure:        res.Structure,
		Producers:        int32(res.Producers),
		Consumers:        int32(res.Consumers),
		ItemsPerProducer: int32(res.ItemsPerProducer),
		Pushed:           int64(res.Pushed),
		Popped:           int64(res.Popped),
		EmptyPops:        int64(res.EmptyPops),
		Duplicates:       int64(res.Duplicates),
		Missing:          int64(res.Missing),
		OrderViolations:  int64(res.OrderViolations),
		NodesAllocated:   res.Nodes.Allocated,
		NodesFreed:       res.Nodes.Freed,
		NodesRecycled:    res.Nodes.Recycled,
		NodesLive:        res.Nodes.Live,
		StartedUnixNano:  res.Started.UnixNano(),
		DurationNanos:    res.Duration.Nanoseconds(),
		Passed:           res.Passed(),
	}
}

// WriteReport writes rows to a zstd-compressed parquet file at path.
func WriteReport(path string, rows []RunReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}

	pw := parquet.NewGenericWriter[RunReport](f, parquet.Compression(&parquet.Zstd))
	if _, err := pw.Write(rows); err != nil {
		_ = pw.Close()
		_ = f.Close()
		return fmt.Errorf("write report rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("close report writer: %w", err)
	}
	return f.Close()
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) ([]RunReport, error) {
	rows, err := parquet.ReadFile[RunReport](path)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	return rows, nil
}
