package leads

import (
	"github.com/rosalabs/voice-agent/internal/live"
)

// ToolName is the structured function the remote agent invokes to hand
// over the collected lead
const ToolName = "saveLead"

// SaveLeadTool returns the saveLead function declaration registered with
// the live session
func SaveLeadTool() live.FunctionDeclaration {
	return live.FunctionDeclaration{
		Name:        ToolName,
		Description: "Guarda la información del cliente potencial (lead) en la base de datos una vez recolectada.",
		Parameters: &live.Schema{
			Type: "object",
			Properties: map[string]*live.Schema{
				"contactName":       {Type: "string", Description: "Nombre de la persona de contacto."},
				"companyName":       {Type: "string", Description: "Nombre de la empresa."},
				"industry":          {Type: "string", Description: "Sector industrial de la empresa."},
				"companySize":       {Type: "string", Description: "Tamaño de la empresa (ej. número de empleados)."},
				"painPoint":         {Type: "string", Description: "El problema principal, dolor o necesidad que quieren resolver."},
				"email":             {Type: "string", Description: "Correo electrónico de contacto."},
				"phone":             {Type: "string", Description: "Número de teléfono."},
				"website":           {Type: "string", Description: "Sitio web o red social (opcional)."},
				"meetingPreference": {Type: "string", Description: "Fecha y hora preferida para la reunión de demostración."},
			},
			Required: []string{"contactName", "companyName", "email"},
		},
	}
}
