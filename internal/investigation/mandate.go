package investigation

// mandateBoilerplate is the default purpose and protected-rights text per investigation type.
type mandateBoilerplate struct {
	Purpose         string
	ProtectedRights string
}

var investigationTypes = []string{
	"Infedeltà coniugale",
	"Controllo patrimonio",
	"Pedinamento",
	"Verifica comportamenti",
	"Indagini aziendali",
	"Controllo dipendenti",
	"Ricerca persone",
	"Altro",
}

var mandateTable = map[string]mandateBoilerplate{
	"Infedeltà coniugale": {
		Purpose:         "Esecuzione di accertamenti volti a verificare l’esistenza di una relazione sentimentale e la condotta economico-finanziaria del soggetto, anche in relazione agli obblighi di mantenimento nei confronti del figlio minore.",
		ProtectedRights: "L’agenzia viene quindi incaricata, su esplicito mandato da parte del mandante, di svolgere ogni utile indagine investigativa finalizzata ad appurare se l’osservato intrattenga un’eventuale relazione sentimentale e se le condizioni economiche non permettano realmente di provvedere ad un sostegno economico da parte dell’osservato, come descritto dal mandante.",
	},
	"Controllo patrimonio": {
		Purpose:         "Verifica della situazione patrimoniale e finanziaria del soggetto, inclusi beni immobili, partecipazioni societarie e flussi di reddito.",
		ProtectedRights: "Tutela degli interessi economici e patrimoniali del mandante, prevenzione di frodi o recupero crediti.",
	},
	"Pedinamento": {
		Purpose:         "Monitoraggio degli spostamenti e delle attività del soggetto per documentarne la routine o specifici comportamenti.",
		ProtectedRights: "Acquisizione di prove documentali a tutela di diritti legali o personali.",
	},
	"Verifica comportamenti": {
		Purpose:         "Accertamento di comportamenti specifici del soggetto in relazione a sospetti o esigenze del mandante.",
		ProtectedRights: "Protezione della reputazione, della sicurezza o degli interessi legittimi del mandante.",
	},
	"Indagini aziendali": {
		Purpose:         "Raccolta di informazioni su dipendenti, soci o concorrenti per tutelare gli interessi aziendali.",
		ProtectedRights: "Protezione del patrimonio aziendale, della proprietà intellettuale e prevenzione di atti illeciti.",
	},
	"Controllo dipendenti": {
		Purpose:         "Monitoraggio della condotta dei dipendenti per verificare la fedeltà, il rispetto degli orari o l’uso improprio di risorse aziendali.",
		ProtectedRights: "Tutela degli interessi aziendali, prevenzione di furti, frodi o concorrenza sleale.",
	},
	"Ricerca persone": {
		Purpose:         "Localizzazione di persone scomparse o irreperibili per motivi legali o personali.",
		ProtectedRights: "Tutela del diritto alla conoscenza e alla protezione di persone vulnerabili.",
	},
	"Altro": {},
}

// InvestigationTypes lists the canonical investigation types in display order.
func InvestigationTypes() []string {
	return append([]string(nil), investigationTypes...)
}

// ApplyInvestigationType sets the type and overwrites purpose and protected
// rights from the boilerplate table. Unknown types clear both fields.
func ApplyInvestigationType(m MandateDetails, investigationType string) MandateDetails {
	entry := mandateTable[investigationType]
	m.InvestigationType = investigationType
	m.Purpose = entry.Purpose
	m.ProtectedRights = entry.ProtectedRights
	return m
}
