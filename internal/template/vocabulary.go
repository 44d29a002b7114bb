package template

// Group names of the fixed vocabulary.
const (
	GroupClient = "client"
	GroupEvent  = "event"
	GroupStaff  = "staff"
)

// DefaultDateLayout renders dates as day/month/year.
const DefaultDateLayout = "02/01/2006"

// Variable is one canonical placeholder with its accepted aliases and the
// context field that backs it.
type Variable struct {
	Key         string   `json:"key"`
	Aliases     []string `json:"aliases,omitempty"`
	Field       string   `json:"field"`
	Group       string   `json:"group"`
	Description string   `json:"description"`
	IsDate      bool     `json:"isDate,omitempty"`
}

// Vocabulary is the closed set of recognized placeholders. It is immutable
// once built; accessors return copies.
type Vocabulary struct {
	variables  []Variable
	byName     map[string]Variable
	dateLayout string
	sample     map[string]any
}

// NewVocabulary indexes variables by canonical key and alias. An empty
// dateLayout falls back to DefaultDateLayout.
func NewVocabulary(variables []Variable, dateLayout string, sample map[string]any) *Vocabulary {
	if dateLayout == "" {
		dateLayout = DefaultDateLayout
	}

	v := &Vocabulary{
		variables:  make([]Variable, 0, len(variables)),
		byName:     make(map[string]Variable, len(variables)*2),
		dateLayout: dateLayout,
		sample:     make(map[string]any, len(sample)),
	}

	for _, variable := range variables {
		variable.Aliases = append([]string(nil), variable.Aliases...)
		v.variables = append(v.variables, variable)
		v.byName[variable.Key] = variable
		for _, alias := range variable.Aliases {
			v.byName[alias] = variable
		}
	}

	for k, val := range sample {
		v.sample[k] = val
	}

	return v
}

// DefaultVocabulary is the client/event/staff vocabulary used by rules.
func DefaultVocabulary(dateLayout string) *Vocabulary {
	return NewVocabulary(defaultVariables, dateLayout, defaultSample)
}

var defaultVariables = []Variable{
	{Key: "cliente", Aliases: []string{"client_name"}, Field: "client_name", Group: GroupClient, Description: "Client name"},
	{Key: "email", Aliases: []string{"client_email"}, Field: "client_email", Group: GroupClient, Description: "Client email"},
	{Key: "phone", Aliases: []string{"client_phone"}, Field: "client_phone", Group: GroupClient, Description: "Client phone"},

	{Key: "data", Aliases: []string{"date"}, Field: "event_date", Group: GroupEvent, Description: "Event date (dd/mm/yyyy)", IsDate: true},
	{Key: "local", Aliases: []string{"location"}, Field: "event_location", Group: GroupEvent, Description: "Event location"},
	{Key: "event_name", Field: "event_name", Group: GroupEvent, Description: "Event name"},

	{Key: "nome", Aliases: []string{"staff_name", "nome_staff"}, Field: "staff_name", Group: GroupStaff, Description: "Staff member name"},
	{Key: "staff_role", Field: "staff_role", Group: GroupStaff, Description: "Staff member role"},
}

var defaultSample = map[string]any{
	"client_name":    "Maria Silva",
	"client_email":   "maria@exemplo.com",
	"client_phone":   "(11) 98765-4321",
	"event_date":     "2026-03-15",
	"event_location": "Salão de Festas Central",
	"event_name":     "Casamento Maria & João",
	"staff_name":     "Carlos Santos",
	"staff_role":     "Bartender",
}

// Lookup resolves a canonical key or alias.
func (v *Vocabulary) Lookup(name string) (Variable, bool) {
	variable, ok := v.byName[name]
	return variable, ok
}

func (v *Vocabulary) Variables() []Variable {
	out := make([]Variable, len(v.variables))
	for i, variable := range v.variables {
		variable.Aliases = append([]string(nil), variable.Aliases...)
		out[i] = variable
	}
	return out
}

func (v *Vocabulary) DateLayout() string {
	return v.dateLayout
}

// Sample returns a copy of the preview context.
func (v *Vocabulary) Sample() map[string]any {
	out := make(map[string]any, len(v.sample))
	for k, val := range v.sample {
		out[k] = val
	}
	return out
}
