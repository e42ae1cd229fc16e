// Package assistant is the chat helper behind /assistant/chat. It answers
// patients, dentists and triage staff in French, Dutch or English, either
// through an OpenAI-compatible chat-completions endpoint or, when that is
// unavailable, with canned replies.
package assistant

const (
	ModePatient = "patient"
	ModeDentist = "dentist"
	ModeTriage  = "triage"
)

const (
	LangEnglish = "en"
	LangFrench  = "fr"
	LangDutch   = "nl"
)

const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// MaxHistory is how many prior turns are forwarded to the model.
const MaxHistory = 10

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type UserProfile struct {
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	Language string `json:"language,omitempty"`
}

type PatientContext struct {
	PatientID   string   `json:"patient_id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Age         *int     `json:"age,omitempty"`
	Allergies   []string `json:"allergies,omitempty"`
	Medications []string `json:"medications,omitempty"`
	LastVisit   string   `json:"last_visit,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

type ChatRequest struct {
	Message             string          `json:"message" validate:"required,max=4000"`
	ConversationHistory []Message       `json:"conversation_history,omitempty" validate:"max=100"`
	UserProfile         *UserProfile    `json:"user_profile,omitempty"`
	PatientContext      *PatientContext `json:"patient_context,omitempty"`
	Mode                string          `json:"mode,omitempty" validate:"omitempty,oneof=patient dentist triage"`
}

type ChatResponse struct {
	Response         string   `json:"response"`
	Language         string   `json:"language"`
	Mode             string   `json:"mode"`
	Suggestions      []string `json:"suggestions"`
	Urgency          string   `json:"urgency"`
	RecommendDentist bool     `json:"recommend_dentist"`
	Fallback         bool     `json:"fallback"`
}
