// Package document turns a report and an agency profile into a printable document tree.
package document

// SectionKind identifies a body section.
type SectionKind string

const (
	KindClient       SectionKind = "client"
	KindSubject      SectionKind = "subject"
	KindAssignment   SectionKind = "assignment"
	KindMandate      SectionKind = "mandate"
	KindObservations SectionKind = "observations"
	KindPhotos       SectionKind = "photos"
	KindNotes        SectionKind = "notes"
	KindConclusions  SectionKind = "conclusions"
	KindClosing      SectionKind = "closing"
	KindSignature    SectionKind = "signature"
	KindPrivacy      SectionKind = "privacy"
)

// Document is the rendered report.
type Document struct {
	Title         string
	ContentHeader string
	Cover         Cover
	Body          []Section
}

// Cover is the first page block.
type Cover struct {
	Agency    Branding
	DateLine  string
	Recipient []string
	Synopsis  []SynopsisRow
}

// Branding carries agency identity and the footer lines.
type Branding struct {
	Name        string
	Subtitle    string
	LogoSrc     string
	LogoAlt     string
	FooterLines []string
}

// SynopsisRow is one label/value pair of the cover summary table.
type SynopsisRow struct {
	Label string
	Value string
}

// Run is a fragment of paragraph text.
type Run struct {
	Text string
	Bold bool
}

// Paragraph is a sequence of runs. PreWrap keeps user line breaks.
type Paragraph struct {
	Runs    []Run
	PreWrap bool
	Small   bool
}

// Text concatenates the runs.
func (p Paragraph) Text() string {
	out := ""
	for _, r := range p.Runs {
		out += r.Text
	}
	return out
}

// Section is a titled block of the body. An empty Title renders no heading.
type Section struct {
	Kind            SectionKind
	Title           string
	Paragraphs      []Paragraph
	ItemsIntro      string
	Items           []string
	Days            []Day
	Photos          []PhotoBlock
	PageBreakBefore bool
	AvoidSplit      bool
	OnCover         bool
}

// Day is one observation day narrative.
type Day struct {
	ID           string
	Heading      string
	Paragraphs   []Paragraph
	PhotoHeading string
	Photos       []PhotoBlock
}

// PhotoBlock is a captioned picture. An empty Src renders the caption only.
type PhotoBlock struct {
	ID      string
	Src     string
	Alt     string
	Meta    string
	Caption string
}

// CoverSections returns the sections printed on the first page.
func (d Document) CoverSections() []Section {
	var out []Section
	for _, s := range d.Body {
		if s.OnCover {
			out = append(out, s)
		}
	}
	return out
}

// ContentSections returns the sections following the first page.
func (d Document) ContentSections() []Section {
	var out []Section
	for _, s := range d.Body {
		if !s.OnCover {
			out = append(out, s)
		}
	}
	return out
}

// Section returns the first section of the given kind.
func (d Document) Section(kind SectionKind) (Section, bool) {
	for _, s := range d.Body {
		if s.Kind == kind {
			return s, true
		}
	}
	return Section{}, false
}

// Images lists every image reference in document order, logo first.
func (d Document) Images() []string {
	var out []string
	if d.Cover.Agency.LogoSrc != "" {
		out = append(out, d.Cover.Agency.LogoSrc)
	}
	for _, s := range d.Body {
		for _, day := range s.Days {
			for _, p := range day.Photos {
				if p.Src != "" {
					out = append(out, p.Src)
				}
			}
		}
		for _, p := range s.Photos {
			if p.Src != "" {
				out = append(out, p.Src)
			}
		}
	}
	return out
}

// MapImages returns a copy with every image reference replaced by fn(src).
// A blank result removes the image and keeps its caption.
func (d Document) MapImages(fn func(src string) string) Document {
	out := d
	if out.Cover.Agency.LogoSrc != "" {
		out.Cover.Agency.LogoSrc = fn(out.Cover.Agency.LogoSrc)
	}
	out.Body = make([]Section, len(d.Body))
	for i, s := range d.Body {
		if len(s.Days) > 0 {
			days := make([]Day, len(s.Days))
			for j, day := range s.Days {
				day.Photos = mapPhotos(day.Photos, fn)
				days[j] = day
			}
			s.Days = days
		}
		s.Photos = mapPhotos(s.Photos, fn)
		out.Body[i] = s
	}
	return out
}

func mapPhotos(in []PhotoBlock, fn func(string) string) []PhotoBlock {
	if in == nil {
		return nil
	}
	out := make([]PhotoBlock, len(in))
	for i, p := range in {
		if p.Src != "" {
			p.Src = fn(p.Src)
		}
		out[i] = p
	}
	return out
}
