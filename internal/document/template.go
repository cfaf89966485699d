package document

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/falco-investigation/falco/web"
)

const templateName = "investigation_report.html"

// Template serialises a Document to standalone HTML.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses the embedded report template.
func NewTemplate() (*Template, error) {
	funcMap := template.FuncMap{
		"imgsrc": imageSource,
	}
	tpl, err := template.New(templateName).Funcs(funcMap).ParseFS(web.Templates, "templates/reports/"+templateName)
	if err != nil {
		return nil, fmt.Errorf("document: parse template: %w", err)
	}
	return &Template{tpl: tpl}, nil
}

// Execute writes the HTML for doc.
func (t *Template) Execute(w io.Writer, doc Document) error {
	if t == nil || t.tpl == nil {
		return fmt.Errorf("document: template not initialised")
	}
	return t.tpl.ExecuteTemplate(w, templateName, doc)
}

// Render returns the HTML for doc.
func (t *Template) Render(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// imageSource lets inline raster/SVG data URIs through the URL sanitiser.
// Other values keep the default escaping.
func imageSource(src string) any {
	if strings.HasPrefix(src, "data:image/") {
		return template.URL(src)
	}
	return src
}
