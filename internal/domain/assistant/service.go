package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

type Service struct {
	completer Completer
	logger    zerolog.Logger
}

// NewService builds the assistant. A nil completer means every answer is a
// canned fallback.
func NewService(completer Completer, logger zerolog.Logger) *Service {
	return &Service{completer: completer, logger: logger}
}

func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("message is required")
	}
	mode := normalizeMode(req.Mode)
	lang := resolveLanguage(req.UserProfile, message)

	resp := &ChatResponse{Language: lang, Mode: mode}
	if s.completer == nil {
		resp.Response = fallbackText(lang, mode)
		resp.Fallback = true
		analyze(resp, message)
		return resp, nil
	}

	answer, err := s.completer.Complete(ctx, buildMessages(req, message, mode, lang))
	if err != nil {
		s.logger.Warn().Err(err).Str("mode", mode).Str("language", lang).Msg("chat completion failed, using fallback")
		resp.Response = fallbackText(lang, mode)
		resp.Fallback = true
	} else {
		resp.Response = answer
	}
	analyze(resp, message)
	return resp, nil
}

func buildMessages(req ChatRequest, message, mode, lang string) []Message {
	history := recentHistory(req.ConversationHistory)
	out := make([]Message, 0, len(history)+2)
	out = append(out, Message{Role: "system", Content: SystemPrompt(mode, lang, req.UserProfile, req.PatientContext)})
	out = append(out, history...)
	return append(out, Message{Role: "user", Content: message})
}

// recentHistory keeps the last MaxHistory user and assistant turns.
func recentHistory(history []Message) []Message {
	kept := make([]Message, 0, len(history))
	for _, m := range history {
		role := strings.ToLower(m.Role)
		if (role != "user" && role != "assistant") || strings.TrimSpace(m.Content) == "" {
			continue
		}
		kept = append(kept, Message{Role: role, Content: m.Content})
	}
	if len(kept) > MaxHistory {
		kept = kept[len(kept)-MaxHistory:]
	}
	return kept
}

var modeInstructions = map[string]string{
	ModePatient: "You help patients of a dental practice with general oral-health questions. " +
		"Explain in plain words, never give a diagnosis, and advise seeing a dentist when symptoms need attention.",
	ModeDentist: "You assist a dentist during clinical work. Be concise and precise, use professional terminology, " +
		"and point out allergies or medication interactions that matter for the treatment.",
	ModeTriage: "You help front-desk staff triage a patient's request. Ask short questions to judge urgency, " +
		"flag emergencies (heavy bleeding, facial swelling, trauma, difficulty breathing) clearly, and suggest how soon the patient should be seen.",
}

// SystemPrompt describes the assistant's role, language and context.
func SystemPrompt(mode, lang string, profile *UserProfile, patient *PatientContext) string {
	var b strings.Builder
	b.WriteString(modeInstructions[normalizeMode(mode)])
	fmt.Fprintf(&b, "\nAlways answer in %s.", languageNames[lang])
	b.WriteString("\nWhen you give advice, format the key points as a short bulleted list.")

	if profile != nil && (profile.Name != "" || profile.Role != "") {
		b.WriteString("\n\nYou are talking to")
		if profile.Name != "" {
			fmt.Fprintf(&b, " %s", profile.Name)
		}
		if profile.Role != "" {
			fmt.Fprintf(&b, " (%s)", profile.Role)
		}
		b.WriteString(".")
	}

	if patient != nil {
		b.WriteString("\n\nPatient context:")
		if patient.Name != "" {
			fmt.Fprintf(&b, "\n- Name: %s", patient.Name)
		}
		if patient.Age != nil {
			fmt.Fprintf(&b, "\n- Age: %d", *patient.Age)
		}
		if len(patient.Allergies) > 0 {
			fmt.Fprintf(&b, "\n- Allergies: %s", strings.Join(patient.Allergies, ", "))
		}
		if len(patient.Medications) > 0 {
			fmt.Fprintf(&b, "\n- Medications: %s", strings.Join(patient.Medications, ", "))
		}
		if patient.LastVisit != "" {
			fmt.Fprintf(&b, "\n- Last visit: %s", patient.LastVisit)
		}
		if patient.Notes != "" {
			fmt.Fprintf(&b, "\n- Notes: %s", patient.Notes)
		}
	}
	return b.String()
}
