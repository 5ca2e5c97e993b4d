// Package report renders a forecast's results as a small static HTML page
// suitable for publishing to a web server.
package report

import (
	"bufio"
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"
	"time"
)

// PredictionRow is one labelled value in the current prediction table, e.g.
// ("Median bloom date", "2012-03-10").
type PredictionRow struct {
	Label string
	Value string
}

// EvolutionEntry is one parsed line of the bloom date evolution log: the
// forcing data date followed by the line's prediction fields.
type EvolutionEntry struct {
	DataDate string
	Fields   []string
}

// Data is everything the results page shows.
type Data struct {
	Title        string
	RunStartDate time.Time
	DataDate     time.Time
	Prediction   []PredictionRow
	Evolution    []EvolutionEntry
	GeneratedAt  time.Time
}

var pageTemplate = template.Must(template.New("results").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
<p>Run start date: {{.RunStartDate.Format "2006-01-02"}}<br>
Forcing data date: {{.DataDate.Format "2006-01-02"}}</p>
<h2>Current Prediction</h2>
<table>
{{range .Prediction}}<tr><td>{{.Label}}</td><td>{{.Value}}</td></tr>
{{end}}</table>
<h2>Prediction Evolution</h2>
<table>
{{range .Evolution}}<tr><td>{{.DataDate}}</td>{{range .Fields}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
<p><small>Generated {{.GeneratedAt.Format "2006-01-02 15:04"}}</small></p>
</body>
</html>
`))

// Render writes the results page HTML.
func Render(w io.Writer, data Data) error {
	if data.Title == "" {
		data.Title = "Spring Diatom Bloom Prediction"
	}
	if data.GeneratedAt.IsZero() {
		data.GeneratedAt = time.Now()
	}
	return pageTemplate.Execute(w, data)
}

// RenderFile renders the results page to a file.
func RenderFile(path string, data Data) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating results page: %w", err)
	}
	if err := Render(f, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ParseEvolutionLog reads bloom date evolution log lines into page entries,
// newest last. Comment lines start with `#`.
func ParseEvolutionLog(r io.Reader) ([]EvolutionEntry, error) {
	var entries []EvolutionEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		entries = append(entries, EvolutionEntry{
			DataDate: fields[0],
			Fields:   fields[1:],
		})
	}
	return entries, scanner.Err()
}

// ParseEvolutionLogFile reads the evolution log at path. A missing file is an
// empty history, not an error.
func ParseEvolutionLogFile(path string) ([]EvolutionEntry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseEvolutionLog(f)
}
