package widget

import (
	"net/url"
	"sort"
	"strings"
	"unicode"
)

var fieldLabels = map[string]string{
	"name":           "👤 Nombre",
	"phone":          "📱 Teléfono",
	"email":          "📧 Email",
	"interest":       "🎯 Interés",
	"budget":         "💰 Presupuesto",
	"zone":           "📍 Zona",
	"operation":      "🏠 Operación",
	"treatment":      "🩺 Tratamiento",
	"preferred_date": "📅 Fecha preferida",
	"date":           "📅 Fecha",
	"people":         "👥 Personas",
	"product":        "🛍️ Producto",
	"quantity":       "🔢 Cantidad",
	"course":         "📚 Curso",
	"schedule":       "🕒 Horario",
	"service":        "🛠️ Servicio",
}

// fieldOrder puts the identity fields first; anything else follows alphabetically.
var fieldOrder = map[string]int{"name": 0, "phone": 1, "email": 2, "interest": 3}

// FieldLines renders captured lead fields as one emoji-prefixed line each.
// Empty values are skipped.
func FieldLines(fields map[string]string) []string {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if strings.TrimSpace(v) != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iok := fieldOrder[keys[i]]
		oj, jok := fieldOrder[keys[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		label, ok := fieldLabels[k]
		if !ok {
			label = "📝 " + humanize(k)
		}
		lines = append(lines, label+": "+strings.TrimSpace(fields[k]))
	}
	return lines
}

// WhatsAppLink builds the wa.me deep link that hands the visitor over to the
// business with the captured data prefilled. It returns "" without a number.
func WhatsAppLink(number, businessName string, fields map[string]string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
	if digits == "" {
		return ""
	}
	text := "¡Hola " + businessName + "! Vengo del chat de su web."
	if lines := FieldLines(fields); len(lines) > 0 {
		text += "\n\n" + strings.Join(lines, "\n")
	}
	return "https://wa.me/" + digits + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}

func humanize(key string) string {
	s := strings.TrimSpace(strings.ReplaceAll(key, "_", " "))
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
