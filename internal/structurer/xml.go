package structurer

import "strings"

// Memory is the decoded form of the structured memory XML: a
// `<memory type="..." domain="...">` element whose body holds some
// subset of `<what>`, `<when>`, `<do>`, `<warn>` per FieldsForType.
type Memory struct {
	Type   string
	Domain string
	What   string
	When   string
	Do     string
	Warn   string
}

// fieldValue returns m's value for a named field, or "" if unset.
func (m Memory) fieldValue(field string) string {
	switch field {
	case "what":
		return m.What
	case "when":
		return m.When
	case "do":
		return m.Do
	case "warn":
		return m.Warn
	default:
		return ""
	}
}

// Encode renders m as the structured memory XML using the field subset
// for m.Type ; fields with no value are omitted. Escaping
// covers only `&`, `<`, `>`, matching the minimal escaping rule.
func Encode(m Memory) string {
	var b strings.Builder
	b.WriteString(`<memory type="`)
	b.WriteString(escape(m.Type))
	b.WriteString(`" domain="`)
	b.WriteString(escape(m.Domain))
	b.WriteString(`">`)

	for _, field := range FieldsForType(m.Type) {
		value := m.fieldValue(field)
		if value == "" {
			continue
		}
		b.WriteString("<")
		b.WriteString(field)
		b.WriteString(">")
		b.WriteString(escape(value))
		b.WriteString("</")
		b.WriteString(field)
		b.WriteString(">")
	}

	b.WriteString("</memory>")
	return b.String()
}

// Decode parses a structured memory XML string back into a Memory.
// It is a small hand-rolled parser rather than encoding/xml: the
// format is a flat, single-level envelope with only `&`/`<`/`>`
// escaping, and a full XML parser would reject or mis-handle
// attribute/content quoting variance an LLM-produced string may have.
func Decode(raw string) (Memory, bool) {
	var m Memory

	typeAttr, ok := extractAttr(raw, "type")
	if !ok {
		return m, false
	}
	m.Type = typeAttr
	m.Domain, _ = extractAttr(raw, "domain")

	for _, field := range []string{"what", "when", "do", "warn"} {
		if value, ok := extractElement(raw, field); ok {
			switch field {
			case "what":
				m.What = value
			case "when":
				m.When = value
			case "do":
				m.Do = value
			case "warn":
				m.Warn = value
			}
		}
	}

	return m, true
}

func extractAttr(raw, name string) (string, bool) {
	marker := name + `="`
	i := strings.Index(raw, marker)
	if i < 0 {
		return "", false
	}
	rest := raw[i+len(marker):]
	j := strings.Index(rest, `"`)
	if j < 0 {
		return "", false
	}
	return unescape(rest[:j]), true
}

func extractElement(raw, tag string) (string, bool) {
	open := "<" + tag + ">"
	closeTag := "</" + tag + ">"
	i := strings.Index(raw, open)
	if i < 0 {
		return "", false
	}
	rest := raw[i+len(open):]
	j := strings.Index(rest, closeTag)
	if j < 0 {
		return "", false
	}
	return unescape(rest[:j]), true
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return s
}
