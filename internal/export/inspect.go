package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Info summarises a produced PDF.
type Info struct {
	Pages int
	Text  string
}

// Inspect validates the document and counts its pages. The text is best
// effort: pages whose content cannot be decoded are skipped.
func Inspect(document []byte) (Info, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(bytes.NewReader(document), conf)
	if err != nil {
		return Info{}, fmt.Errorf("export: read pdf: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return Info{}, fmt.Errorf("export: count pages: %w", err)
	}
	if ctx.PageCount < 1 {
		return Info{}, fmt.Errorf("export: pdf has no pages")
	}
	return Info{Pages: ctx.PageCount, Text: plainText(document)}, nil
}

func plainText(document []byte) string {
	reader, err := pdf.NewReader(bytes.NewReader(document), int64(len(document)))
	if err != nil {
		return ""
	}
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.TrimSpace(text))
	}
	return b.String()
}
