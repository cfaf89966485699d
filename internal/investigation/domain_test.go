package investigation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyDefaults(t *testing.T) {
	data := Empty()
	require.Equal(t, DefaultDocumentType, data.ClientInfo.DocumentType)
	require.Equal(t, PhotoStrategyPerDay, data.PhotoManagement.PhotoStrategy)
	require.Equal(t, StandardPrivacyMessage, data.Privacy.StandardMessage)
	require.NotNil(t, data.Photos)
	require.NotNil(t, data.ObservationDays)
	require.NotNil(t, data.InvestigatedInfo.Vehicles)
}

func TestMergeReplacesTopLevelKeysOnly(t *testing.T) {
	base := Empty()
	base.ClientInfo = ClientInfo{FullName: "Maria Rossi", Address: "Via Roma 1", DocumentType: "Passaporto"}
	base.Conclusions.Text = "nessuna anomalia"

	merged := base.Merge(Partial{ClientInfo: &ClientInfo{FullName: "Anna Bianchi"}})

	assert.Equal(t, "Anna Bianchi", merged.ClientInfo.FullName)
	assert.Empty(t, merged.ClientInfo.Address, "nested objects are replaced, not merged")
	assert.Empty(t, merged.ClientInfo.DocumentType)
	assert.Equal(t, "nessuna anomalia", merged.Conclusions.Text)
	assert.Equal(t, "Maria Rossi", base.ClientInfo.FullName, "merge must not mutate the receiver")
}

func TestMergeEmptyPartialIsIdentity(t *testing.T) {
	base := Empty()
	base.Photos = []Photo{{ID: "1", Date: "2024-03-10"}}
	require.True(t, Partial{}.IsEmpty())
	require.Equal(t, base, base.Merge(Partial{}))
}

func TestCloneDoesNotShareSlices(t *testing.T) {
	base := Empty()
	base.ObservationDays = []ObservationDay{{ID: "1", Locations: []Location{{PlaceName: "Bar"}}}}
	clone := base.Clone()
	clone.ObservationDays[0].Locations[0].PlaceName = "Cafe"
	require.Equal(t, "Bar", base.ObservationDays[0].Locations[0].PlaceName)
}

func TestDecodeSection(t *testing.T) {
	p, err := DecodeSection(SectionPhotoManagement, []byte(`{"photoStrategy":"separate-dossier"}`))
	require.NoError(t, err)
	require.NotNil(t, p.PhotoManagement)
	require.Equal(t, PhotoStrategySeparateDossier, p.PhotoManagement.PhotoStrategy)

	p, err = DecodeSection(SectionObservationDays, []byte(`[{"id":"1","date":"2024-03-10"}]`))
	require.NoError(t, err)
	require.Len(t, *p.ObservationDays, 1)

	_, err = DecodeSection("unknown", []byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownSection)

	_, err = DecodeSection(SectionClientInfo, []byte(`not json`))
	require.Error(t, err)
}

func TestDecodeDataKeepsDefaultsForMissingKeys(t *testing.T) {
	data, err := DecodeData([]byte(`{"clientInfo":{"fullName":"Maria Rossi"}}`))
	require.NoError(t, err)
	require.Equal(t, "Maria Rossi", data.ClientInfo.FullName)
	require.Equal(t, PhotoStrategyPerDay, data.PhotoManagement.PhotoStrategy)
	require.Equal(t, StandardPrivacyMessage, data.Privacy.StandardMessage)

	encoded, err := json.Marshal(data)
	require.NoError(t, err)
	require.Contains(t, string(encoded), `"photos":[]`)
}

func TestApplyInvestigationTypeOverwritesHandEdits(t *testing.T) {
	m := ApplyInvestigationType(MandateDetails{AssignmentDate: "2024-03-01"}, "Infedeltà coniugale")
	require.Equal(t, "2024-03-01", m.AssignmentDate)
	require.Contains(t, m.Purpose, "relazione sentimentale")
	require.NotEmpty(t, m.ProtectedRights)
	boilerplate := m.Purpose

	m.Purpose = "testo modificato a mano"
	m = ApplyInvestigationType(m, "Infedeltà coniugale")
	require.Equal(t, boilerplate, m.Purpose)
}

func TestApplyInvestigationTypeUnknownClears(t *testing.T) {
	m := ApplyInvestigationType(MandateDetails{}, "Pedinamento")
	require.NotEmpty(t, m.Purpose)

	for _, typ := range []string{"Altro", "Sconosciuto"} {
		cleared := ApplyInvestigationType(m, typ)
		assert.Equal(t, typ, cleared.InvestigationType)
		assert.Empty(t, cleared.Purpose)
		assert.Empty(t, cleared.ProtectedRights)
	}
}

func TestInvestigationTypesOrder(t *testing.T) {
	types := InvestigationTypes()
	require.Len(t, types, 8)
	require.Equal(t, "Infedeltà coniugale", types[0])
	require.Equal(t, "Altro", types[7])
	types[0] = "changed"
	require.Equal(t, "Infedeltà coniugale", InvestigationTypes()[0])
}
