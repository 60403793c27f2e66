package handover

import (
	"fmt"
	"strings"

	"nurseos/internal/draft"
	"nurseos/internal/fhir"
)

// BuildText renders the handover document stored in the patient record.
func BuildText(p fhir.Patient, shift Shift, devices []string, fields draft.Payload) string {
	w := shift.Window()
	active := "ninguno"
	if len(devices) > 0 {
		active = strings.Join(devices, ", ")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "ENTREGA DE TURNO (%s) 12h\n", shift.Label())
	fmt.Fprintf(&b, "Paciente: %s  |  Sexo: %s  |  Nac.: %s\n", p.FullName(), p.Gender, p.BirthDate)
	fmt.Fprintf(&b, "ID: %s\n\n", p.DisplayID())
	fmt.Fprintf(&b, "Dispositivos activos: %s\n\n", active)
	section(&b, "Evolución/Hechos relevantes:", fields[FieldEvolucion])
	section(&b, "Cambios de medicación:", fields[FieldMeds])
	section(&b, "Plan de cuidados / objetivos:", fields[FieldPlan])
	section(&b, "Pendientes para el siguiente turno:", fields[FieldPendientes])
	fmt.Fprintf(&b, "Ventana: %s → %s\n", w.Start, w.End)
	b.WriteString("(Generado en NurseOS — revisión humana obligatoria)")
	return b.String()
}

func section(b *strings.Builder, title, body string) {
	if body == "" {
		body = "-"
	}
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n\n")
}
