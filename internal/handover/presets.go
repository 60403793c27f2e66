package handover

// Field names of the handover form.
const (
	FieldEvolucion  = "evolucion"
	FieldMeds       = "meds"
	FieldPlan       = "plan"
	FieldPendientes = "pendientes"
)

var Fields = []string{FieldEvolucion, FieldMeds, FieldPlan, FieldPendientes}

// Preset is a canned sentence appended to one field.
type Preset struct {
	Label  string `json:"label"`
	Target string `json:"target"`
	Text   string `json:"text"`
}

var Presets = []Preset{
	{Label: "Orientado x3", Target: FieldEvolucion, Text: "Paciente orientado en persona, lugar y tiempo. Glasgow 15/15."},
	{Label: "Dolor controlado", Target: FieldEvolucion, Text: "Dolor controlado con esquema vigente, EVA ≤3."},
	{Label: "Sin eventos agudos", Target: FieldEvolucion, Text: "Sin eventos clínicos relevantes en la ventana del turno."},
	{Label: "ATB ajustado", Target: FieldMeds, Text: "Ajuste antibiótico realizado según última sensibilidad."},
	{Label: "Insulina SC PRN", Target: FieldMeds, Text: "Insulina subcutánea según esquema PRN/DM."},
	{Label: "Vía periférica ok", Target: FieldPlan, Text: "Vía periférica permeable y fijación íntegra."},
	{Label: "Herida limpia/seca", Target: FieldPlan, Text: "Herida quirúrgica limpia y seca, sin signos de infección."},
	{Label: "Pendientes de control", Target: FieldPendientes, Text: "Control de signos 20:00; balance hídrico cada 4 h; curación a las 22:00."},
}

func PresetsFor(target string) []Preset {
	var out []Preset
	for _, p := range Presets {
		if p.Target == target {
			out = append(out, p)
		}
	}
	return out
}

func FindPreset(label string) (Preset, bool) {
	for _, p := range Presets {
		if p.Label == label {
			return p, true
		}
	}
	return Preset{}, false
}
