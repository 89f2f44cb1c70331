package files

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/phrazzld/kbase-api/internal/platform/scraper"
)

// ExtractText returns the indexable text of a stored file. The format is
// chosen by extension and falls back to content sniffing.
func (s *Storage) ExtractText(path, filename string) (string, error) {
	f, err := s.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return Extract(data, filename)
}

// Extract converts file contents to text.
func Extract(data []byte, filename string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "txt", "md", "markdown":
		return plain(data, filename)
	case "json":
		return indentJSON(data, filename)
	case "csv":
		return csvRows(data, filename)
	case "html", "htm":
		_, text, err := scraper.ExtractText(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("failed to extract text from %s: %w", filename, err)
		}
		return text, nil
	case "pdf", "docx", "doc":
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filename)
	}

	mt := mimetype.Detect(data)
	switch {
	case mt.Is("text/html"):
		_, text, err := scraper.ExtractText(bytes.NewReader(data))
		return text, err
	case mt.Is("application/json"):
		return indentJSON(data, filename)
	case strings.HasPrefix(mt.String(), "text/"):
		return plain(data, filename)
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, filename, mt.String())
}

func plain(data []byte, filename string) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8 text", ErrUnsupportedType, filename)
	}
	return string(data), nil
}

func indentJSON(data []byte, filename string) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", filename, err)
	}
	return buf.String(), nil
}

// csvRows renders each record as a JSON object keyed by the header row.
func csvRows(data []byte, filename string) (string, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", filename, err)
	}
	if len(records) < 2 {
		return "", nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}

	out, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
