package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"strategy-sweep-lab/internal/analysis"
)

// RenderCSV renders one analysis table as CSV string.
func RenderCSV(t analysis.Table) string {
	var sb strings.Builder

	// Header
	for i, h := range t.Header {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(field(h))
	}
	sb.WriteByte('\n')

	// Rows
	for _, row := range t.Rows {
		for i, v := range row {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(field(cell(v)))
		}
		sb.WriteByte('\n')
	}

	return sb.String()
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func field(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// WriteFiles writes analysis_<level>.md and one CSV per table into dir.
// It returns the written paths.
func WriteFiles(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	level := strings.ToLower(r.Level)

	var paths []string
	md := filepath.Join(dir, fmt.Sprintf("analysis_%s.md", level))
	if err := os.WriteFile(md, []byte(RenderMarkdown(r)), 0o644); err != nil {
		return nil, fmt.Errorf("write markdown: %w", err)
	}
	paths = append(paths, md)

	for _, t := range r.Tables {
		name := strings.ToLower(strings.TrimPrefix(t.Name, "Analysis_"))
		p := filepath.Join(dir, fmt.Sprintf("analysis_%s_%s.csv", level, name))
		if err := os.WriteFile(p, []byte(RenderCSV(t)), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", t.Name, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
