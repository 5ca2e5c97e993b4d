// Package sim drives the external ocean simulation as a subprocess and reads
// the tabular result files it produces.
package sim

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Timeseries holds two columns selected by field name from a simulation
// result file: an independent variable (model time, hours since the start of
// the run) and a dependent quantity.
type Timeseries struct {
	IndepField string
	DepField   string
	IndepUnits string
	DepUnits   string
	Indep      []float64
	Dep        []float64
}

// Profile holds one depth-profile snapshot selected from a Hoffmueller result
// file: depth as the independent variable and a quantity as the dependent one.
type Profile struct {
	IndepField string
	DepField   string
	Indep      []float64
	Dep        []float64
}

// resultHeader is the parsed header section of a simulation result file. The
// header declares the field names and units of the data columns that follow.
type resultHeader struct {
	fieldNames []string
	fieldUnits []string
}

func (h *resultHeader) fieldIndex(name string) (int, error) {
	for i, field := range h.fieldNames {
		if field == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf(
		"no %q field in result file; have %v", name, h.fieldNames)
}

// readHeader consumes header lines up to and including the end-of-header
// marker. Header lines start with `*`; the field name and unit declarations
// are comma-separated lists.
func readHeader(scanner *bufio.Scanner) (*resultHeader, error) {
	header := &resultHeader{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "*EndOfHeader":
			return header, scanner.Err()
		case strings.HasPrefix(line, "*FieldNames:"):
			header.fieldNames = splitFieldList(line, "*FieldNames:")
		case strings.HasPrefix(line, "*FieldUnits:"):
			header.fieldUnits = splitFieldList(line, "*FieldUnits:")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("result file ended before *EndOfHeader marker")
}

func splitFieldList(line, prefix string) []string {
	var fields []string
	for _, field := range strings.Split(strings.TrimPrefix(line, prefix), ",") {
		fields = append(fields, strings.TrimSpace(field))
	}
	return fields
}

func unitFor(header *resultHeader, index int) string {
	if index < len(header.fieldUnits) {
		return header.fieldUnits[index]
	}
	return ""
}

// ReadTimeseries extracts the named independent and dependent columns from a
// tabular simulation result file. Data rows follow the header, one line per
// time sample, whitespace-separated values in field-name order.
func ReadTimeseries(r io.Reader, indepField, depField string) (*Timeseries, error) {
	scanner := bufio.NewScanner(r)
	header, err := readHeader(scanner)
	if err != nil {
		return nil, err
	}
	indepIdx, err := header.fieldIndex(indepField)
	if err != nil {
		return nil, err
	}
	depIdx, err := header.fieldIndex(depField)
	if err != nil {
		return nil, err
	}
	ts := &Timeseries{
		IndepField: indepField,
		DepField:   depField,
		IndepUnits: unitFor(header, indepIdx),
		DepUnits:   unitFor(header, depIdx),
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		indep, dep, err := parseRow(line, indepIdx, depIdx)
		if err != nil {
			return nil, err
		}
		ts.Indep = append(ts.Indep, indep)
		ts.Dep = append(ts.Dep, dep)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ts, nil
}

// ReadHoffmuellerProfile extracts the named columns of the numbered profile
// snapshot from a Hoffmueller result file. Profile snapshots follow the
// header as blank-line-delimited blocks of data rows; profile 1 is the first
// block.
func ReadHoffmuellerProfile(r io.Reader, indepField, depField string, profile int) (*Profile, error) {
	if profile < 1 {
		return nil, fmt.Errorf("profile numbers start at 1, got %d", profile)
	}
	scanner := bufio.NewScanner(r)
	header, err := readHeader(scanner)
	if err != nil {
		return nil, err
	}
	indepIdx, err := header.fieldIndex(indepField)
	if err != nil {
		return nil, err
	}
	depIdx, err := header.fieldIndex(depField)
	if err != nil {
		return nil, err
	}
	p := &Profile{IndepField: indepField, DepField: depField}
	block := 1
	inBlock := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if inBlock {
				if block == profile {
					return p, nil
				}
				block++
				inBlock = false
			}
			continue
		}
		inBlock = true
		if block != profile {
			continue
		}
		indep, dep, err := parseRow(line, indepIdx, depIdx)
		if err != nil {
			return nil, err
		}
		p.Indep = append(p.Indep, indep)
		p.Dep = append(p.Dep, dep)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if block == profile && inBlock {
		return p, nil
	}
	blocks := block - 1
	if inBlock {
		blocks = block
	}
	return nil, fmt.Errorf(
		"no profile %d in Hoffmueller result file; file has %d", profile, blocks)
}

func parseRow(line string, indepIdx, depIdx int) (float64, float64, error) {
	columns := strings.Fields(line)
	if indepIdx >= len(columns) || depIdx >= len(columns) {
		return 0, 0, fmt.Errorf(
			"result file data row has %d columns, need %d: %q",
			len(columns), max(indepIdx, depIdx)+1, line)
	}
	indep, err := strconv.ParseFloat(columns[indepIdx], 64)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "result file data row %q", line)
	}
	dep, err := strconv.ParseFloat(columns[depIdx], 64)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "result file data row %q", line)
	}
	return indep, dep, nil
}
