package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"html/template"
	"strconv"
	"time"
)

const threadTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Georgia, serif; color: #222; }
h1 { border-bottom: 2px solid #222; padding-bottom: 8px; }
h2 { margin-top: 24px; font-size: 15px; color: #444; }
.comment { margin: 8px 0 8px 16px; padding: 8px 12px; border-left: 3px solid #bbb; }
.meta { font-size: 11px; color: #777; }
.edited { font-style: italic; }
</style>
</head>
<body>
<h1>Comments — {{.Explore}}</h1>
<p class="meta">Exported {{formatDate .ExportedAt "Jan 2, 2006 15:04 MST"}}</p>
{{range .Threads}}
<h2>{{.Field}}</h2>
{{range .Comments}}
<div class="comment">
<div>{{.Content}}</div>
<div class="meta">{{.Author}} — {{formatMillis .TimestampMS}}{{if .Edited}} <span class="edited">(edited)</span>{{end}}</div>
</div>
{{end}}
{{end}}
</body>
</html>`

var pageTemplate = template.Must(template.New("threads").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"formatMillis": func(ms int64) string {
		return time.UnixMilli(ms).UTC().Format("Jan 2, 2006 15:04 UTC")
	},
}).Parse(threadTemplate))

type templateData struct {
	Explore    string
	ExportedAt time.Time
	Threads    []FieldThread
}

// Service renders comment threads into export formats.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Export renders the threads in the requested format.
func (s *Service) Export(ctx context.Context, explore string, threads []FieldThread, format Format) (*Result, error) {
	switch format {
	case FormatCSV:
		return exportCSV(explore, threads)
	case FormatPDF:
		html, err := renderHTML(explore, threads)
		if err != nil {
			return nil, err
		}
		return exportPDF(ctx, html, "comments-"+explore)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func renderHTML(explore string, threads []FieldThread) (string, error) {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, templateData{
		Explore:    explore,
		ExportedAt: time.Now(),
		Threads:    threads,
	})
	if err != nil {
		return "", fmt.Errorf("render threads: %w", err)
	}
	return buf.String(), nil
}

func exportCSV(explore string, threads []FieldThread) (*Result, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"explore", "field", "author", "timestamp_ms", "edited", "content"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, thread := range threads {
		for _, c := range thread.Comments {
			record := []string{
				explore,
				thread.Field,
				c.Author,
				strconv.FormatInt(c.TimestampMS, 10),
				strconv.FormatBool(c.Edited),
				c.Content,
			}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename("comments-"+explore) + ".csv",
		MimeType: "text/csv",
	}, nil
}

// sanitizeFilename creates a safe filename from a title.
func sanitizeFilename(title string) string {
	result := ""
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result += string(r)
		case r == ' ', r == '.':
			result += "-"
		case r == '-', r == '_':
			result += string(r)
		default:
		}
	}
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "comments"
	}
	return result
}
