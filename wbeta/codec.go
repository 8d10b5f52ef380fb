package wbeta

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// The on-disk count format is one row per category of comma-separated
// floats, one file per matrix. File handling itself stays outside the core;
// these helpers only encode and decode streams.

// WriteCounts encodes the assignment and reward matrices to the two writers.
func (w *WeightedBeta) WriteCounts(assignment, reward io.Writer) error {
	a, r := w.Counts()
	if err := writeMatrix(assignment, a); err != nil {
		return fmt.Errorf("wbeta: write assignment counts: %w", err)
	}
	if err := writeMatrix(reward, r); err != nil {
		return fmt.Errorf("wbeta: write reward counts: %w", err)
	}
	return nil
}

// ReadCounts decodes both matrices and installs them via SetCounts, so a
// write/read round trip reproduces the exact posterior parameters.
func (w *WeightedBeta) ReadCounts(assignment, reward io.Reader) error {
	a, err := readMatrix(assignment)
	if err != nil {
		return fmt.Errorf("wbeta: read assignment counts: %w", err)
	}
	r, err := readMatrix(reward)
	if err != nil {
		return fmt.Errorf("wbeta: read reward counts: %w", err)
	}
	return w.SetCounts(a, r)
}

func writeMatrix(w io.Writer, rows [][]float64) error {
	bw := bufio.NewWriter(w)
	for _, row := range rows {
		for j, v := range row {
			if j > 0 {
				if err := bw.WriteByte(','); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func readMatrix(r io.Reader) ([][]float64, error) {
	var rows [][]float64
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		row := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d field %d: %w", len(rows), i, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
