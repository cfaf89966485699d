package document

import (
	"strconv"
	"strings"
	"time"

	"github.com/falco-investigation/falco/internal/agency"
	"github.com/falco-investigation/falco/internal/investigation"
)

const (
	// Placeholder marks synopsis values that were never filled in.
	Placeholder = "Non specificato"

	DefaultCity = "Milano"

	defaultAgencyName    = "FALCO INVESTIGATION"
	agencySubtitle       = "INVESTIGAZIONI-INDAGINI-RICERCHE"
	defaultAgencyAddress = "20124 MILANO (MI) – VIA SABAUDIA 8"
	defaultAgencyPhone   = "+39 02 82 19 79 69"
	defaultAgencyEmail   = "milano@falcoinvestigation.it"
	defaultAgencyWebsite = "WWW.INVESTIGATIONFALCO.IT"
	agencyRegistration   = "P.Iva IT11535690967 Autorizzazione Prefettura Milano Prot. 14816/12B15E Area I OSP"

	// FallbackLogo is a shield icon used when the agency has no logo.
	FallbackLogo = "data:image/svg+xml;base64,PHN2ZyB4bWxucz0iaHR0cDovL3d3dy53My5vcmcvMjAwMC9zdmciIHdpZHRoPSIyNCIgaGVpZ2h0PSIyNCIgdmlld0JveD0iMCAwIDI0IDI0IiBmaWxsPSJub25lIiBzdHJva2U9ImN1cnJlbnRDb2xvciIgc3Ryb2tlLXdpZHRoPSIyIiBzdHJva2UtbGluZWNhcD0icm91bmQiIHN0cm9rZS1saW5lam9pbj0icm91bmQiPjxwYXRoIGQ9Ik0xMiAyMnM4LTQgOC0xMFY1bC04LTMtOCAzdjdjMCA2IDggMTAgOCAxMHoiLz48L3N2Zz4="

	ReportTitle      = "REPORT INVESTIGATIVO"
	ClosingStatement = "Tanto vi dovevamo per le Vs. eventuali e ulteriori valutazioni."
	SignatureTitle   = "INVESTIGATORE PRIVATO"

	privacyFallback = "Le informazioni contenute nel presente report sono di natura strettamente confidenziale e la loro divulgazione è consentita solo nel rispetto delle leggi vigenti, in particolar modo quelle sulla privacy. Le responsabilità del loro uso difforme è in capo al soggetto che le diffonde."
	privacyNotice   = "il presente report viene redatto in un unico esemplare originale. Lo stesso sarà consegnato nelle mani della mandante. Si fa presente che lo stesso potrà essere usato nel rispetto delle norme vigenti in materia di privacy. Si dà infine atto del fatto che tutto il materiale utilizzato per la sua redazione sarà distrutto all'atto della consegna."
)

// Section titles.
const (
	TitleClient       = "GENERALITÀ DEL MANDANTE"
	TitleSubject      = "PERSONA DI CUI SI CHIEDE L’OSSERVAZIONE"
	TitleAssignment   = "DATA DELL’INCARICO"
	TitleMandate      = "FINALITÀ DEL MANDATO E DIRITTO CHE SI INTENDE TUTELARE"
	TitleObservations = "ESITO DEGLI ACCERTAMENTI E DELL’ATTIVITÀ DI OSSERVAZIONE DIRETTA"
	TitlePhotos       = "DOCUMENTAZIONE FOTOGRAFICA"
	TitleNotes        = "NOTE AGGIUNTIVE"
	TitleConclusions  = "CONCLUSIONI"
	DayPhotoHeading   = "Documentazione Fotografica del Giorno:"
)

// Options parametrise Build.
type Options struct {
	Now  time.Time
	City string
}

// Build renders the report into a document tree. It has no side effects.
func Build(data investigation.InvestigationData, profile agency.Optional, opts Options) Document {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if strings.TrimSpace(opts.City) == "" {
		opts.City = DefaultCity
	}
	data = data.Normalize()
	brand := branding(profile)

	doc := Document{
		Title:         ReportTitle,
		ContentHeader: brand.Name + " - Relazione Investigativa",
		Cover: Cover{
			Agency:    brand,
			DateLine:  opts.City + ", " + longDate(opts.Now),
			Recipient: recipient(data.ClientInfo),
			Synopsis:  synopsis(data),
		},
	}

	appendIf := func(s Section, ok bool) {
		if ok {
			doc.Body = append(doc.Body, s)
		}
	}
	appendIf(clientSection(data.ClientInfo))
	appendIf(subjectSection(data.InvestigatedInfo))
	appendIf(assignmentSection(data.MandateDetails))
	appendIf(mandateSection(data.MandateDetails, data.InvestigatedInfo.Vehicles))
	appendIf(observationSection(data))
	appendIf(photoSection(data))
	appendIf(textSection(KindNotes, TitleNotes, data.AdditionalNotes.Notes))
	appendIf(textSection(KindConclusions, TitleConclusions, data.Conclusions.Text))
	doc.Body = append(doc.Body,
		Section{Kind: KindClosing, Paragraphs: []Paragraph{plain(ClosingStatement)}},
		signatureSection(profile),
		privacySection(data.Privacy),
	)
	return doc
}

func branding(profile agency.Optional) Branding {
	p, _ := profile.Get()
	b := Branding{
		Name:     orDefault(p.AgencyName, defaultAgencyName),
		Subtitle: agencySubtitle,
		LogoSrc:  orDefault(p.AgencyLogoURL, FallbackLogo),
		LogoAlt:  orDefault(p.AgencyName, "Agency Logo"),
	}
	b.FooterLines = []string{
		b.Name + " - " + orDefault(p.AgencyAddress, defaultAgencyAddress) + " - Tel " + orDefault(p.AgencyPhone, defaultAgencyPhone),
		agencyRegistration,
		orDefault(p.AgencyEmail, defaultAgencyEmail) + " - " + orDefault(p.AgencyWebsite, defaultAgencyWebsite),
	}
	return b
}

func recipient(c investigation.ClientInfo) []string {
	name := strings.TrimSpace(c.FullName)
	if name == "" {
		return nil
	}
	lines := []string{"Spett.le " + name}
	if addr := strings.TrimSpace(c.Address); addr != "" {
		lines = append(lines, addr)
	}
	return lines
}

func synopsis(data investigation.InvestigationData) []SynopsisRow {
	return []SynopsisRow{
		{Label: "Mandante", Value: orDefault(data.ClientInfo.FullName, Placeholder)},
		{Label: "Osservato", Value: orDefault(data.InvestigatedInfo.FullName, Placeholder)},
		{Label: "Tipo di indagine", Value: orDefault(data.MandateDetails.InvestigationType, Placeholder)},
		{Label: "Periodo", Value: orDefault(mandatePeriod(data), Placeholder)},
	}
}

func mandatePeriod(data investigation.InvestigationData) string {
	days := data.ObservationDays
	if len(days) == 0 {
		if data.MandateDetails.AssignmentDate != "" {
			return "dal " + ShortDate(data.MandateDetails.AssignmentDate)
		}
		return ""
	}
	first, last := ShortDate(days[0].Date), ShortDate(days[len(days)-1].Date)
	if len(days) == 1 || first == last {
		return first
	}
	return "dal " + first + " al " + last
}

func clientSection(c investigation.ClientInfo) (Section, bool) {
	if blank(c.FullName, c.Address, c.BirthDate, c.BirthPlace, c.DocumentNumber) {
		return Section{}, false
	}
	text := ""
	if notBlank(c.BirthPlace) && notBlank(c.BirthDate) {
		text += " nata/o a " + c.BirthPlace + " il " + ShortDate(c.BirthDate)
	}
	if notBlank(c.Address) {
		text += " e residente in " + c.Address
	}
	if notBlank(c.DocumentNumber) {
		docType := strings.ToLower(orDefault(c.DocumentType, investigation.DefaultDocumentType))
		text += ", identificata/o a mezzo " + docType + " n° " + c.DocumentNumber + "."
	}
	runs := []Run{{Text: "Sig.ra/Sig. " + orDefault(c.FullName, Placeholder), Bold: true}}
	if text != "" {
		runs = append(runs, Run{Text: text})
	}
	return Section{
		Kind:       KindClient,
		Title:      TitleClient,
		Paragraphs: []Paragraph{{Runs: runs}},
		AvoidSplit: true,
		OnCover:    true,
	}, true
}

func subjectSection(s investigation.InvestigatedInfo) (Section, bool) {
	if !notBlank(s.FullName) {
		return Section{}, false
	}
	runs := []Run{{Text: s.FullName, Bold: true}}
	text := ""
	if notBlank(s.BirthPlace) && notBlank(s.BirthDate) {
		text += ", nato/a a " + s.BirthPlace + " il " + ShortDate(s.BirthDate)
	}
	if notBlank(s.Address) {
		text += " e residente a " + s.Address
	}
	runs = append(runs,
		Run{Text: text + ", di seguito indicata come "},
		Run{Text: "“osservato”", Bold: true},
		Run{Text: "."},
	)
	return Section{
		Kind:       KindSubject,
		Title:      TitleSubject,
		Paragraphs: []Paragraph{{Runs: runs}},
		AvoidSplit: true,
		OnCover:    true,
	}, true
}

func assignmentSection(m investigation.MandateDetails) (Section, bool) {
	if !notBlank(m.AssignmentDate) {
		return Section{}, false
	}
	return Section{
		Kind:       KindAssignment,
		Title:      TitleAssignment,
		Paragraphs: []Paragraph{plain(ShortDate(m.AssignmentDate))},
		AvoidSplit: true,
		OnCover:    true,
	}, true
}

func mandateSection(m investigation.MandateDetails, vehicles []investigation.Vehicle) (Section, bool) {
	if !notBlank(m.Purpose) && !notBlank(m.ProtectedRights) && len(vehicles) == 0 {
		return Section{}, false
	}
	s := Section{Kind: KindMandate, Title: TitleMandate, OnCover: true}
	if notBlank(m.Purpose) {
		s.Paragraphs = append(s.Paragraphs, preWrap(m.Purpose))
	}
	if notBlank(m.ProtectedRights) {
		s.Paragraphs = append(s.Paragraphs, preWrap(m.ProtectedRights))
	}
	if len(vehicles) > 0 {
		s.ItemsIntro = "L’osservato è solito utilizzare per i suoi spostamenti l’autovettura:"
		for _, v := range vehicles {
			s.Items = append(s.Items, v.Model+" di colore "+v.Color+" targato "+v.LicensePlate)
		}
	}
	return s, true
}

func observationSection(data investigation.InvestigationData) (Section, bool) {
	days := data.ObservationDays
	if len(days) == 0 {
		return Section{}, false
	}
	intro := "Nel corso dell’accertamento svolto dal " + ShortDate(days[0].Date)
	if len(days) > 1 {
		intro += " al " + ShortDate(days[len(days)-1].Date)
	}
	intro += " sono emersi i seguenti elementi circa la finalità dell’indagine espletata:"

	perDay := data.Strategy() == investigation.PhotoStrategyPerDay
	s := Section{
		Kind:            KindObservations,
		Title:           TitleObservations,
		Paragraphs:      []Paragraph{plain(intro)},
		PageBreakBefore: true,
	}
	for i, obs := range days {
		day := Day{
			ID:         obs.ID,
			Heading:    "Giorno " + strconv.Itoa(i+1) + ": " + WeekdayDate(obs.Date),
			Paragraphs: []Paragraph{plain(daySentence(obs))},
		}
		if notBlank(obs.Description) {
			day.Paragraphs = append(day.Paragraphs, preWrap(obs.Description))
		}
		if perDay {
			for _, photo := range data.Photos {
				if photo.Date == obs.Date {
					day.Photos = append(day.Photos, photoBlock(photo))
				}
			}
			if len(day.Photos) > 0 {
				day.PhotoHeading = DayPhotoHeading
			}
		}
		s.Days = append(s.Days, day)
	}
	return s, true
}

func daySentence(obs investigation.ObservationDay) string {
	var b strings.Builder
	switch {
	case notBlank(obs.StartTime) && notBlank(obs.EndTime):
		b.WriteString("Dalle ore " + obs.StartTime + " alle ore " + obs.EndTime + ", sono state condotte attività di osservazione.")
	case notBlank(obs.StartTime):
		b.WriteString("Dalle ore " + obs.StartTime + ", sono state condotte attività di osservazione.")
	default:
		b.WriteString("Sono state condotte attività di osservazione.")
	}
	var places []string
	for _, loc := range obs.Locations {
		name, addr := strings.TrimSpace(loc.PlaceName), strings.TrimSpace(loc.Address)
		switch {
		case name != "" && addr != "":
			places = append(places, name+" ("+addr+")")
		case name != "":
			places = append(places, name)
		case addr != "":
			places = append(places, addr)
		}
	}
	if len(places) > 0 {
		b.WriteString(" I luoghi visitati includono: " + strings.Join(places, ", ") + ".")
	}
	return b.String()
}

func photoSection(data investigation.InvestigationData) (Section, bool) {
	if data.Strategy() != investigation.PhotoStrategySeparateDossier || len(data.Photos) == 0 {
		return Section{}, false
	}
	s := Section{
		Kind:  KindPhotos,
		Title: TitlePhotos,
		Paragraphs: []Paragraph{plain("Allegato al presente report viene consegnato un fascicolo fotografico contenente " +
			strconv.Itoa(len(data.Photos)) + " immagini documentali.")},
		PageBreakBefore: true,
	}
	for _, photo := range data.Photos {
		s.Photos = append(s.Photos, photoBlock(photo))
	}
	return s, true
}

func photoBlock(p investigation.Photo) PhotoBlock {
	meta := strings.TrimSpace(p.Time)
	if loc := strings.TrimSpace(p.Location); loc != "" {
		if meta != "" {
			meta += " - "
		}
		meta += loc
	}
	return PhotoBlock{
		ID:      p.ID,
		Src:     strings.TrimSpace(p.URL),
		Alt:     p.Description,
		Meta:    meta,
		Caption: p.Description,
	}
}

func textSection(kind SectionKind, title, text string) (Section, bool) {
	if !notBlank(text) {
		return Section{}, false
	}
	return Section{
		Kind:            kind,
		Title:           title,
		Paragraphs:      []Paragraph{preWrap(text)},
		PageBreakBefore: true,
	}, true
}

func signatureSection(profile agency.Optional) Section {
	name := ""
	if p, ok := profile.Get(); ok {
		name = p.RepresentativeName()
	}
	return Section{
		Kind:       KindSignature,
		Title:      SignatureTitle,
		Paragraphs: []Paragraph{plain(name)},
		AvoidSplit: true,
	}
}

// privacySection always prints the fixed boilerplate; the stored standard
// message is form state only.
func privacySection(p investigation.Privacy) Section {
	s := Section{
		Kind: KindPrivacy,
		Paragraphs: []Paragraph{
			{Runs: []Run{{Text: privacyFallback}}, Small: true},
			{Runs: []Run{{Text: "N.B.:", Bold: true}, {Text: " " + privacyNotice}}, Small: true},
		},
		AvoidSplit: true,
	}
	if notBlank(p.CustomNotes) {
		s.Paragraphs = append(s.Paragraphs, Paragraph{Runs: []Run{{Text: p.CustomNotes}}, PreWrap: true, Small: true})
	}
	return s
}

func plain(text string) Paragraph {
	return Paragraph{Runs: []Run{{Text: text}}}
}

func preWrap(text string) Paragraph {
	return Paragraph{Runs: []Run{{Text: text}}, PreWrap: true}
}

func notBlank(s string) bool {
	return strings.TrimSpace(s) != ""
}

func blank(values ...string) bool {
	for _, v := range values {
		if notBlank(v) {
			return false
		}
	}
	return true
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
