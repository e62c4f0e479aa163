package gsi

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
)

// DefaultSentinel marks sea or void cells in GSI DEM text tiles.
const DefaultSentinel = "e"

var (
	errEmptyTile   = errors.New("empty payload")
	errRaggedRows  = errors.New("row width differs from first row")
	errNonFinite   = errors.New("non-finite elevation")
	errWrongHeight = errors.New("unexpected row count")
)

// Decode parses a text tile: newline-separated rows of comma-separated
// decimal tokens. The sentinel token decodes to 0 and a single terminal
// newline does not produce a row; further blank rows are malformed. Rows
// must all have the same width.
func Decode(body []byte, sentinel string) (domain.TileGrid, error) {
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	body = bytes.TrimSuffix(body, []byte("\n"))
	body = bytes.TrimSuffix(body, []byte("\r"))
	text := string(body)
	if text == "" {
		return nil, &domain.DecodeError{Err: errEmptyTile}
	}

	lines := strings.Split(text, "\n")
	grid := make(domain.TileGrid, len(lines))
	for r, line := range lines {
		tokens := strings.Split(strings.TrimSuffix(line, "\r"), ",")
		if r > 0 && len(tokens) != len(grid[0]) {
			return nil, &domain.DecodeError{Row: r, Err: errRaggedRows}
		}
		row := make([]float64, len(tokens))
		for c, tok := range tokens {
			tok = strings.TrimSpace(tok)
			if tok == sentinel {
				continue
			}
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, &domain.DecodeError{Row: r, Col: c, Token: tok, Err: err}
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &domain.DecodeError{Row: r, Col: c, Token: tok, Err: errNonFinite}
			}
			row[c] = v
		}
		grid[r] = row
	}
	return grid, nil
}

// checkSize rejects grids that are not size x size.
func checkSize(grid domain.TileGrid, size int) error {
	if len(grid) != size {
		return &domain.DecodeError{Row: len(grid), Err: errWrongHeight}
	}
	if len(grid[0]) != size {
		return &domain.DecodeError{Row: 0, Err: errRaggedRows}
	}
	return nil
}
