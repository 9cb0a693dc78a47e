// Package persona holds the fixed tone overlays a user can pick for the
// assistant. A persona only colors prose; it never changes the extraction
// output contract.
package persona

import "strings"

// Default is the key used when a user has no persona or an unknown one.
const Default = "padrao"

// Persona is a selectable tone overlay.
type Persona struct {
	Key   string
	Label string // poll option label, at most 24 characters
	Emoji string
	Tone  string // prompt fragment describing voice and attitude
}

var registry = []Persona{
	{
		Key:   "padrao",
		Label: "Padrão",
		Emoji: "🤖",
		Tone:  "Fale de forma cordial, objetiva e amigável, como um assistente de produtividade.",
	},
	{
		Key:   "vader",
		Label: "Darth Vader",
		Emoji: "🖤",
		Tone:  "Fale como Darth Vader: solene, dramático, com referências ao lado sombrio da Força e à disciplina imperial.",
	},
	{
		Key:   "elsa",
		Label: "Elsa",
		Emoji: "❄️",
		Tone:  "Fale como a Elsa de Frozen: gentil, encorajadora, com metáforas de gelo, neve e liberdade.",
	},
	{
		Key:   "coach",
		Label: "Coach Motivacional",
		Emoji: "💪",
		Tone:  "Fale como um coach motivacional: energético, otimista, sempre incentivando o usuário a dar o próximo passo.",
	},
	{
		Key:   "sargento",
		Label: "Sargento",
		Emoji: "🎖️",
		Tone:  "Fale como um sargento de treinamento: direto, firme, frases curtas e foco total em cumprir a missão.",
	},
}

// Lookup returns the persona for key, falling back to Default.
func Lookup(key string) Persona {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, p := range registry {
		if p.Key == key {
			return p
		}
	}
	return registry[0]
}

// Valid reports whether key names a registered persona.
func Valid(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, p := range registry {
		if p.Key == key {
			return true
		}
	}
	return false
}

// ByLabel finds a persona by its poll label, as a vote reports it.
func ByLabel(label string) (Persona, bool) {
	for _, p := range registry {
		if p.PollLabel() == label || strings.EqualFold(p.Label, label) {
			return p, true
		}
	}
	return Persona{}, false
}

// PollLabel is the option text shown in persona selection polls.
func (p Persona) PollLabel() string {
	return p.Emoji + " " + p.Label
}

// Keys returns the registered keys in display order.
func Keys() []string {
	keys := make([]string, len(registry))
	for i, p := range registry {
		keys[i] = p.Key
	}
	return keys
}

// All returns every persona in display order.
func All() []Persona {
	out := make([]Persona, len(registry))
	copy(out, registry)
	return out
}
