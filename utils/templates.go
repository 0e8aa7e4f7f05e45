package utils

import (
	"strings"

	"leadpilot/models"
)

const (
	genericTemplateKey = "generic"
	brandLinks         = "Web: https://claveai.com.mx | Instagram: https://www.instagram.com/claveai/"
)

// nicheTemplate is the static copy used for one niche.
type nicheTemplate struct {
	Outreach   string
	Followup   string
	LeadMagnet string
}

// Embedded outreach templates, keyed by niche with spaces joined by "_".
// {name} is replaced with the business name.
var outreachTemplates = map[string]nicheTemplate{
	"salon_de_belleza": {
		Outreach:   "¡Hola! Estuve viendo el perfil de {name} y me encantó el trabajo que realizan. ¿Sabías que un sistema de citas automático por WhatsApp puede llenar tu agenda mientras atiendes a tus clientas? En CLAVE.AI lo implementamos en días. " + brandLinks,
		Followup:   "Hola de nuevo, equipo de {name}. ¿Pudieron ver mi mensaje sobre las citas automáticas? Con gusto les muestro un ejemplo real.",
		LeadMagnet: "la guía gratuita \"7 mensajes de WhatsApp que llenan la agenda de un salón\"",
	},
	"terapeutas": {
		Outreach:   "¡Hola! Encontré el consultorio de {name} y me pareció muy profesional. Muchos terapeutas pierden pacientes por no responder a tiempo; en CLAVE.AI automatizamos la primera respuesta y el agendado para que no se escape ninguno. " + brandLinks,
		Followup:   "Hola, {name}. Quería saber si tuvieron oportunidad de revisar la propuesta de agendado automático.",
		LeadMagnet: "el checklist gratuito \"Consultorio digital en 5 pasos\"",
	},
	"psicologos": {
		Outreach:   "¡Hola! Vi el perfil de {name} y me gustó mucho su enfoque. En CLAVE.AI ayudamos a psicólogos a recibir pacientes nuevos con un sitio web claro y recordatorios automáticos que reducen las inasistencias. " + brandLinks,
		Followup:   "Hola, {name}. ¿Les interesaría ver cómo otros consultorios redujeron sus inasistencias a la mitad?",
		LeadMagnet: "la plantilla gratuita de recordatorios para pacientes",
	},
	"gimnasio": {
		Outreach:   "¡Hola! Estuve viendo {name} y se nota la energía que tienen. En CLAVE.AI automatizamos la captación de socios: respuestas inmediatas, pruebas gratuitas agendadas y seguimiento sin esfuerzo. " + brandLinks,
		Followup:   "¡Hola de nuevo, {name}! ¿Vieron mi mensaje sobre la captación automática de socios?",
		LeadMagnet: "el guion gratuito \"De visita a socio en 3 mensajes\"",
	},
	"dentista": {
		Outreach:   "¡Hola! Revisé el perfil de {name} y me dio muy buena impresión. En CLAVE.AI creamos asistentes que confirman citas y responden dudas frecuentes por WhatsApp las 24 horas. " + brandLinks,
		Followup:   "Hola, {name}. ¿Les gustaría una demostración del asistente de citas para consultorios dentales?",
		LeadMagnet: "la guía gratuita \"Cómo llenar huecos de agenda en un consultorio dental\"",
	},
	"inmobiliaria": {
		Outreach:   "¡Hola! Vi las propiedades de {name} y me parecieron excelentes. En CLAVE.AI ayudamos a inmobiliarias a calificar prospectos automáticamente para que su equipo solo atienda compradores reales. " + brandLinks,
		Followup:   "Hola, {name}. ¿Pudieron revisar la idea de calificar prospectos de forma automática?",
		LeadMagnet: "el formato gratuito de calificación de prospectos inmobiliarios",
	},
	"despachos_de_abogados": {
		Outreach:   "¡Hola! Encontré el despacho {name} y me pareció muy sólido. En CLAVE.AI automatizamos la recepción de casos nuevos para que ningún cliente potencial se quede sin respuesta. " + brandLinks,
		Followup:   "Hola, {name}. Quería dar seguimiento a mi mensaje sobre la recepción automática de casos.",
		LeadMagnet: "la guía gratuita \"Intake legal sin fricción\"",
	},
	"veterinaria": {
		Outreach:   "¡Hola! Vi el perfil de {name} y se nota el cariño con el que atienden. En CLAVE.AI automatizamos recordatorios de vacunas y citas por WhatsApp para que sus pacientes peludos siempre regresen. " + brandLinks,
		Followup:   "Hola, {name}. ¿Les interesa ver cómo funcionan los recordatorios automáticos de vacunas?",
		LeadMagnet: "el calendario gratuito de recordatorios para clínicas veterinarias",
	},
	genericTemplateKey: {
		Outreach:   "¡Hola! Estuve viendo el perfil de {name} y me encantó el trabajo que realizan. Hoy en día no tener presencia digital es casi ser invisible; en CLAVE.AI transformamos negocios con sitios web inteligentes y automatización con IA para que vendas incluso mientras descansas. " + brandLinks,
		Followup:   "Hola de nuevo, {name}. ¿Tuvieron oportunidad de ver mi mensaje anterior?",
		LeadMagnet: "nuestra guía gratuita \"5 automatizaciones que todo negocio local debería tener\"",
	},
}

// Follow-up stage templates. {name} and {lead_magnet} are substituted.
var stageTemplates = map[models.Stage]string{
	models.StageDay1: "¡Hola, {name}! Solo quería asegurarme de que vieron mi mensaje de ayer. ¿Les puedo ayudar en algo?",
	models.StageDay2: "Hola, {name}. Preparamos {lead_magnet} y pensé que les sería útil. ¿Se las comparto por aquí?",
	models.StageDay5: "Hola, {name}. Este es mi último mensaje para no ser insistente: si en algún momento quieren automatizar su negocio, aquí estaremos. " + brandLinks,
}

// TemplateKey normalises a niche into the template table key.
func TemplateKey(niche string) string {
	return strings.ReplaceAll(strings.TrimSpace(niche), " ", "_")
}

func templateFor(niche string) nicheTemplate {
	if tpl, ok := outreachTemplates[TemplateKey(niche)]; ok {
		return tpl
	}
	return outreachTemplates[genericTemplateKey]
}

// RenderStageMessage fills the follow-up template for a ledger record.
func RenderStageMessage(stage models.Stage, rec models.ContactRecord) string {
	tpl, ok := stageTemplates[stage]
	if !ok {
		return ""
	}
	magnet := rec.LeadMagnetText
	if magnet == "" {
		magnet = templateFor(rec.Niche).LeadMagnet
	}
	return strings.NewReplacer("{name}", rec.LeadName, "{lead_magnet}", magnet).Replace(tpl)
}
