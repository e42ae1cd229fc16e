package inbox

import (
	"fmt"
	"strings"
	"sync"
)

// Built-in template ids.
const (
	TemplateLowStock          = "low-stock"
	TemplatePaymentLinkFailed = "payment-link-failed"
	TemplateRecallDue         = "recall-due"
)

// Template is a notification layout with {{key}} placeholders.
type Template struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// TemplateEngine renders notification templates.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine returns an engine with the built-in templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range []Template{
		{
			ID:      TemplateLowStock,
			Type:    TypeLowStock,
			Title:   "Low stock: {{item_name}}",
			Message: "{{item_name}} is down to {{quantity}} (threshold {{threshold}}). Please reorder.",
		},
		{
			ID:      TemplatePaymentLinkFailed,
			Type:    TypePayment,
			Title:   "Payment link not sent",
			Message: "The visit for {{patient_name}} was saved but the payment link for {{amount}} could not be created: {{reason}}",
		},
		{
			ID:      TemplateRecallDue,
			Type:    TypeRecall,
			Title:   "Recall due for {{patient_name}}",
			Message: "{{patient_name}} is due for a recall visit on {{due_date}} ({{reason}}).",
		},
	} {
		t := t
		e.templates[t.ID] = &t
	}
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render fills the template's placeholders from data. Placeholders without
// a value are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (*Template, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("template %q not found", templateID)
	}

	out := *t
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		out.Title = strings.ReplaceAll(out.Title, placeholder, v)
		out.Message = strings.ReplaceAll(out.Message, placeholder, v)
	}
	return &out, nil
}
