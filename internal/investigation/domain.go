package investigation

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// PhotoStrategy selects where photo documentation is placed in the report.
type PhotoStrategy string

const (
	PhotoStrategyPerDay          PhotoStrategy = "per-day"
	PhotoStrategySeparateDossier PhotoStrategy = "separate-dossier"
)

// DefaultDocumentType is preselected for the client identity document.
const DefaultDocumentType = "Carta d'Identità"

// StandardPrivacyMessage is the fixed confidentiality notice stored with every new report.
const StandardPrivacyMessage = "La presente relazione è strettamente confidenziale e riservata. I dati contenuti sono stati raccolti nel rispetto della normativa sulla privacy (GDPR 679/2016) e del Codice Deontologico degli Investigatori Privati. È vietata la divulgazione a terzi non autorizzati."

// ClientInfo describes the person who gave the mandate.
type ClientInfo struct {
	FullName       string `json:"fullName"`
	Address        string `json:"address"`
	BirthDate      string `json:"birthDate"`
	BirthPlace     string `json:"birthPlace"`
	DocumentType   string `json:"documentType"`
	DocumentNumber string `json:"documentNumber"`
}

// Vehicle is a car habitually used by the subject.
type Vehicle struct {
	Model        string `json:"model"`
	Color        string `json:"color"`
	LicensePlate string `json:"licensePlate"`
}

// InvestigatedInfo describes the observed subject.
type InvestigatedInfo struct {
	FullName       string    `json:"fullName"`
	Address        string    `json:"address"`
	BirthDate      string    `json:"birthDate"`
	BirthPlace     string    `json:"birthPlace"`
	DocumentType   string    `json:"documentType,omitempty"`
	DocumentNumber string    `json:"documentNumber,omitempty"`
	Vehicles       []Vehicle `json:"vehicles"`
}

// MandateDetails captures the assignment and its legal purpose.
type MandateDetails struct {
	AssignmentDate    string `json:"assignmentDate"`
	InvestigationType string `json:"investigationType"`
	Purpose           string `json:"purpose"`
	ProtectedRights   string `json:"protectedRights"`
}

// Location is a place visited during an observation day.
type Location struct {
	Address   string `json:"address"`
	PlaceName string `json:"placeName"`
}

// ObservationDay is one dated surveillance entry.
type ObservationDay struct {
	ID          string     `json:"id"`
	Type        string     `json:"type,omitempty"`
	Date        string     `json:"date"`
	StartTime   string     `json:"startTime"`
	EndTime     string     `json:"endTime"`
	Locations   []Location `json:"locations"`
	Description string     `json:"description"`
}

// Photo is a documentary picture; URL stays empty until the upload completes.
type Photo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	Date        string `json:"date"`
	URL         string `json:"url"`
}

// PhotoManagement holds the photo placement policy.
type PhotoManagement struct {
	PhotoStrategy PhotoStrategy `json:"photoStrategy" validate:"omitempty,oneof=per-day separate-dossier"`
}

// AdditionalNotes is free text appended after the observations.
type AdditionalNotes struct {
	Notes string `json:"notes"`
}

// Conclusions is the investigator's final assessment.
type Conclusions struct {
	Text string `json:"text"`
}

// Privacy holds the confidentiality notice and optional custom notes.
type Privacy struct {
	StandardMessage string `json:"standardMessage"`
	CustomNotes     string `json:"customNotes"`
}

// InvestigationData is the report in progress. It is persisted as one JSON document.
type InvestigationData struct {
	ClientInfo       ClientInfo       `json:"clientInfo"`
	InvestigatedInfo InvestigatedInfo `json:"investigatedInfo"`
	MandateDetails   MandateDetails   `json:"mandateDetails"`
	ObservationDays  []ObservationDay `json:"observationDays"`
	Photos           []Photo          `json:"photos"`
	AdditionalNotes  AdditionalNotes  `json:"additionalNotes"`
	PhotoManagement  PhotoManagement  `json:"photoManagement"`
	Conclusions      Conclusions      `json:"conclusions"`
	Privacy          Privacy          `json:"privacy"`
}

// Empty returns the initial record used for a brand new report.
func Empty() InvestigationData {
	return InvestigationData{
		ClientInfo:       ClientInfo{DocumentType: DefaultDocumentType},
		InvestigatedInfo: InvestigatedInfo{Vehicles: []Vehicle{}},
		ObservationDays:  []ObservationDay{},
		Photos:           []Photo{},
		PhotoManagement:  PhotoManagement{PhotoStrategy: PhotoStrategyPerDay},
		Privacy:          Privacy{StandardMessage: StandardPrivacyMessage},
	}
}

// Strategy returns the effective photo strategy, defaulting to per-day.
func (d InvestigationData) Strategy() PhotoStrategy {
	if d.PhotoManagement.PhotoStrategy == PhotoStrategySeparateDossier {
		return PhotoStrategySeparateDossier
	}
	return PhotoStrategyPerDay
}

// Clone returns a deep copy so callers never share slices with the store.
func (d InvestigationData) Clone() InvestigationData {
	out := d
	out.InvestigatedInfo.Vehicles = append([]Vehicle{}, d.InvestigatedInfo.Vehicles...)
	out.ObservationDays = make([]ObservationDay, len(d.ObservationDays))
	for i, day := range d.ObservationDays {
		day.Locations = append([]Location{}, day.Locations...)
		out.ObservationDays[i] = day
	}
	out.Photos = append([]Photo{}, d.Photos...)
	return out
}

// Normalize fills nil slices so the stored JSON never contains nulls.
func (d InvestigationData) Normalize() InvestigationData {
	if d.InvestigatedInfo.Vehicles == nil {
		d.InvestigatedInfo.Vehicles = []Vehicle{}
	}
	if d.ObservationDays == nil {
		d.ObservationDays = []ObservationDay{}
	}
	for i := range d.ObservationDays {
		if d.ObservationDays[i].Locations == nil {
			d.ObservationDays[i].Locations = []Location{}
		}
	}
	if d.Photos == nil {
		d.Photos = []Photo{}
	}
	if d.PhotoManagement.PhotoStrategy == "" {
		d.PhotoManagement.PhotoStrategy = PhotoStrategyPerDay
	}
	return d
}

// FindPhoto returns the index of the photo with the given id or -1.
func (d InvestigationData) FindPhoto(id string) int {
	for i, photo := range d.Photos {
		if photo.ID == id {
			return i
		}
	}
	return -1
}

// FindObservationDay returns the index of the day with the given id or -1.
func (d InvestigationData) FindObservationDay(id string) int {
	for i, day := range d.ObservationDays {
		if day.ID == id {
			return i
		}
	}
	return -1
}

// Partial carries whole-slice replacements. Nil fields are left untouched.
type Partial struct {
	ClientInfo       *ClientInfo       `json:"clientInfo,omitempty"`
	InvestigatedInfo *InvestigatedInfo `json:"investigatedInfo,omitempty"`
	MandateDetails   *MandateDetails   `json:"mandateDetails,omitempty"`
	ObservationDays  *[]ObservationDay `json:"observationDays,omitempty"`
	Photos           *[]Photo          `json:"photos,omitempty"`
	AdditionalNotes  *AdditionalNotes  `json:"additionalNotes,omitempty"`
	PhotoManagement  *PhotoManagement  `json:"photoManagement,omitempty" validate:"omitempty"`
	Conclusions      *Conclusions      `json:"conclusions,omitempty"`
	Privacy          *Privacy          `json:"privacy,omitempty"`
}

// IsEmpty reports whether the partial carries no slice at all.
func (p Partial) IsEmpty() bool {
	return p.ClientInfo == nil &&
		p.InvestigatedInfo == nil &&
		p.MandateDetails == nil &&
		p.ObservationDays == nil &&
		p.Photos == nil &&
		p.AdditionalNotes == nil &&
		p.PhotoManagement == nil &&
		p.Conclusions == nil &&
		p.Privacy == nil
}

// Merge replaces the top-level keys present in p. Nested values are never merged.
func (d InvestigationData) Merge(p Partial) InvestigationData {
	out := d.Clone()
	if p.ClientInfo != nil {
		out.ClientInfo = *p.ClientInfo
	}
	if p.InvestigatedInfo != nil {
		out.InvestigatedInfo = *p.InvestigatedInfo
	}
	if p.MandateDetails != nil {
		out.MandateDetails = *p.MandateDetails
	}
	if p.ObservationDays != nil {
		out.ObservationDays = *p.ObservationDays
	}
	if p.Photos != nil {
		out.Photos = *p.Photos
	}
	if p.AdditionalNotes != nil {
		out.AdditionalNotes = *p.AdditionalNotes
	}
	if p.PhotoManagement != nil {
		out.PhotoManagement = *p.PhotoManagement
	}
	if p.Conclusions != nil {
		out.Conclusions = *p.Conclusions
	}
	if p.Privacy != nil {
		out.Privacy = *p.Privacy
	}
	return out.Normalize().Clone()
}

// Section names accepted by the section editor endpoints.
const (
	SectionClientInfo       = "clientInfo"
	SectionInvestigatedInfo = "investigatedInfo"
	SectionMandateDetails   = "mandateDetails"
	SectionObservationDays  = "observationDays"
	SectionPhotos           = "photos"
	SectionAdditionalNotes  = "additionalNotes"
	SectionPhotoManagement  = "photoManagement"
	SectionConclusions      = "conclusions"
	SectionPrivacy          = "privacy"
)

// DecodeSection builds a single-slice partial from a raw JSON body.
func DecodeSection(section string, raw []byte) (Partial, error) {
	var p Partial
	var target any
	switch section {
	case SectionClientInfo:
		p.ClientInfo = &ClientInfo{}
		target = p.ClientInfo
	case SectionInvestigatedInfo:
		p.InvestigatedInfo = &InvestigatedInfo{}
		target = p.InvestigatedInfo
	case SectionMandateDetails:
		p.MandateDetails = &MandateDetails{}
		target = p.MandateDetails
	case SectionObservationDays:
		days := []ObservationDay{}
		p.ObservationDays = &days
		target = p.ObservationDays
	case SectionPhotos:
		photos := []Photo{}
		p.Photos = &photos
		target = p.Photos
	case SectionAdditionalNotes:
		p.AdditionalNotes = &AdditionalNotes{}
		target = p.AdditionalNotes
	case SectionPhotoManagement:
		p.PhotoManagement = &PhotoManagement{}
		target = p.PhotoManagement
	case SectionConclusions:
		p.Conclusions = &Conclusions{}
		target = p.Conclusions
	case SectionPrivacy:
		p.Privacy = &Privacy{}
		target = p.Privacy
	default:
		return Partial{}, ErrUnknownSection
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return Partial{}, err
	}
	return p, nil
}

// Report is a persisted row of investigation_reports.
type Report struct {
	ID        string
	UserID    int64
	Data      InvestigationData
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubjectName returns the trimmed subject name used for export filenames.
func (d InvestigationData) SubjectName() string {
	return strings.TrimSpace(d.InvestigatedInfo.FullName)
}

var (
	ErrReportNotFound   = errors.New("investigation: report not found")
	ErrUnknownSection   = errors.New("investigation: unknown section")
	ErrPhotoNotFound    = errors.New("investigation: photo not found")
	ErrDayNotFound      = errors.New("investigation: observation day not found")
	ErrStoreClosed      = errors.New("investigation: store closed")
	ErrSaverUnavailable = errors.New("investigation: saver not configured")
)
