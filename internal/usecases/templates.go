package usecases

// IndustryTemplate describes how the assistant should present the business and
// which data qualifies a lead.
type IndustryTemplate struct {
	ID         string
	Name       string
	Context    string
	LeadFields []string
}

const DefaultTemplateID = "generic"

var industryTemplates = map[string]IndustryTemplate{
	"generic": {
		ID:         "generic",
		Name:       "Negocio general",
		Context:    "Atiendes a potenciales clientes que visitan el sitio web del negocio. Resuelve dudas sobre productos y servicios y guía la conversación hacia una venta o una cita.",
		LeadFields: []string{"name", "phone", "interest"},
	},
	"real_estate": {
		ID:         "real_estate",
		Name:       "Inmobiliaria",
		Context:    "El negocio es una inmobiliaria. Ayudas a encontrar propiedades para comprar o alquilar, preguntando por zona, presupuesto, número de habitaciones y plazos.",
		LeadFields: []string{"name", "phone", "budget", "zone", "operation"},
	},
	"clinic": {
		ID:         "clinic",
		Name:       "Clínica / salud",
		Context:    "El negocio es una clínica. Informas sobre tratamientos y ayudas a pedir cita. Nunca das diagnósticos médicos; ante urgencias recomiendas acudir a emergencias.",
		LeadFields: []string{"name", "phone", "treatment", "preferred_date"},
	},
	"restaurant": {
		ID:         "restaurant",
		Name:       "Restaurante",
		Context:    "El negocio es un restaurante. Informas sobre la carta, horarios y ayudas a reservar mesa o hacer pedidos para eventos.",
		LeadFields: []string{"name", "phone", "people", "date"},
	},
	"ecommerce": {
		ID:         "ecommerce",
		Name:       "Tienda online",
		Context:    "El negocio es una tienda online. Ayudas a elegir productos, resuelves dudas de envíos y devoluciones y detectas compras al por mayor.",
		LeadFields: []string{"name", "phone", "product", "quantity"},
	},
	"education": {
		ID:         "education",
		Name:       "Academia / educación",
		Context:    "El negocio es un centro educativo. Informas sobre cursos, modalidades y precios, y ayudas a inscribirse.",
		LeadFields: []string{"name", "phone", "course", "schedule"},
	},
	"services": {
		ID:         "services",
		Name:       "Servicios profesionales",
		Context:    "El negocio ofrece servicios profesionales. Entiendes la necesidad del cliente, explicas cómo trabajamos y cualificas el proyecto.",
		LeadFields: []string{"name", "phone", "service", "budget"},
	},
}

// Template returns the template for id, falling back to the generic one.
func Template(id string) IndustryTemplate {
	if t, ok := industryTemplates[id]; ok {
		return t
	}
	return industryTemplates[DefaultTemplateID]
}

// KnownTemplate reports whether id names a template in the catalog.
func KnownTemplate(id string) bool {
	_, ok := industryTemplates[id]
	return ok
}
