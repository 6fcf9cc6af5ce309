package game

import (
	"fmt"
	"math/rand/v2"
)

// Messages is the catalogue of learner-facing feedback. Texts are Spanish,
// the learner's first language.
type Messages struct {
	// Encouraging is shown after a correct answer.
	Encouraging []string

	// Gentle is shown after a wrong answer. Each entry is a format string
	// with one %s for the expected word.
	Gentle []string

	Completed   string
	Busy        string
	Retry       string
	Unsupported string
	MicError    string
	EmptySet    string

	// Pick returns a random index in [0, n). Nil uses math/rand.
	Pick func(n int) int
}

// DefaultMessages returns the standard catalogue.
func DefaultMessages() *Messages {
	return &Messages{
		Encouraging: []string{
			"¡Excelente! ¡Muy bien!",
			"¡Fantástico! ¡Lo lograste!",
			"¡Súper! ¡Eres increíble!",
			"¡Genial! ¡Sigue así!",
			"¡Perfecto! ¡Eres un campeón!",
			"¡Bravo! ¡Qué bien lo dijiste!",
			"¡Wow! ¡Eres muy inteligente!",
		},
		Gentle: []string{
			`¡Casi! Intenta decir "%s" otra vez 😊`,
			`¡Muy bien! Ahora di "%s" 🌟`,
			`¡Sigue intentando! Di "%s" 💪`,
			`¡Tú puedes! Intenta "%s" de nuevo 🎯`,
		},
		Completed:   "¡Felicidades! Has completado todas las tarjetas. ¡Excelente trabajo!",
		Busy:        "Espera un momento, estoy procesando tu respuesta anterior...",
		Retry:       "No pude escucharte bien. Intenta de nuevo.",
		Unsupported: "Tu navegador no soporta reconocimiento de voz.",
		MicError:    "Error al iniciar el micrófono. Verifica los permisos.",
		EmptySet:    "Este grupo todavía no tiene tarjetas.",
	}
}

// Encourage returns a random encouraging message.
func (m *Messages) Encourage() string {
	return m.choose(m.Encouraging)
}

// Nudge returns a random gentle retry message naming the expected word.
func (m *Messages) Nudge(expected string) string {
	f := m.choose(m.Gentle)
	if f == "" {
		return expected
	}
	return fmt.Sprintf(f, expected)
}

func (m *Messages) choose(list []string) string {
	if len(list) == 0 {
		return ""
	}
	pick := m.Pick
	if pick == nil {
		pick = rand.IntN
	}
	return list[pick(len(list))]
}
