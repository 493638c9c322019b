package evaluators

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"abvalid/internal/protocol"
	"abvalid/internal/validation"
)

// minSampleRows is the row count below which the dataset is considered too
// small regardless of the design parameters.
const minSampleRows = 30

// Data validates the experiment dataset: completeness, missing values,
// column typing, and sample-size adequacy against the expected effect size.
// Rubric: completeness 30, quality 30, types 20, sample size 20.
type Data struct{}

// NewData builds the data-quality evaluator.
func NewData() *Data {
	return &Data{}
}

// Handle scores the dataset referenced by the context.
func (d *Data) Handle(ctx context.Context, req *protocol.Message, vc *validation.Context) (*protocol.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	header, rows, err := readCSV(vc.DatasetPath)
	if err != nil {
		return protocol.NewError(req, fmt.Sprintf("dataset unreadable: %v", err)), nil
	}
	if len(header) == 0 || len(rows) == 0 {
		return protocol.NewError(req, "dataset is empty"), nil
	}

	completeness := completenessPoints(len(rows))
	quality := qualityPoints(rows)
	types := typePoints(header, rows)
	sample := samplePoints(len(rows), vc)

	score := completeness + quality + types + sample
	return protocol.NewResponse(req, map[string]any{
		"score":           score,
		"validation_type": "data_quality",
		"checks_performed": []any{
			"completeness_check", "missing_values_check", "data_types_check", "sample_size_check",
		},
		"details": map[string]any{
			"rows":          float64(len(rows)),
			"columns":       float64(len(header)),
			"completeness":  completeness,
			"quality":       quality,
			"types":         types,
			"sample_size":   sample,
		},
	}), nil
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

// completenessPoints: 30 when the dataset has a workable number of rows.
func completenessPoints(rows int) float64 {
	switch {
	case rows >= minSampleRows*2:
		return 30
	case rows >= minSampleRows:
		return 20
	case rows > 0:
		return 10
	default:
		return 0
	}
}

// qualityPoints: 30 scaled down by the fraction of missing cells.
func qualityPoints(rows [][]string) float64 {
	total, missing := 0, 0
	for _, row := range rows {
		for _, cell := range row {
			total++
			if strings.TrimSpace(cell) == "" {
				missing++
			}
		}
	}
	if total == 0 {
		return 0
	}
	ratio := float64(missing) / float64(total)
	points := 30 * (1 - ratio*5) // 20% missing cells zeroes the dimension
	if points < 0 {
		return 0
	}
	return points
}

// typePoints: 20 when every column is consistently typed (all-numeric or
// all-text past the header), scaled by the consistent fraction.
func typePoints(header []string, rows [][]string) float64 {
	if len(header) == 0 {
		return 0
	}
	consistent := 0
	for col := range header {
		numeric, text := 0, 0
		for _, row := range rows {
			if col >= len(row) || strings.TrimSpace(row[col]) == "" {
				continue
			}
			if _, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64); err == nil {
				numeric++
			} else {
				text++
			}
		}
		if numeric == 0 || text == 0 {
			consistent++
		}
	}
	return 20 * float64(consistent) / float64(len(header))
}

// samplePoints: 20 when the observed per-group sample size reaches the size
// the design requires for the expected effect, scaled otherwise.
func samplePoints(rows int, vc *validation.Context) float64 {
	required := RequiredSampleSize(vc.ExpectedEffectSize, vc.SignificanceLevel, vc.Power)
	if required <= 0 {
		return 10 // design parameters unusable; neutral credit
	}
	perGroup := float64(rows) / 2
	if perGroup >= required {
		return 20
	}
	return 20 * perGroup / required
}
