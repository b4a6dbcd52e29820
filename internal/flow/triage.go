// Package flow implements the conversation logic of the GemiFish intake
// service: the triage questionnaire, the pluggable responder strategies, and
// the router that ties them to the contact store and the media pipeline.
package flow

import (
	"strings"

	"github.com/jalliet/UM-GemiFish/internal/models"
)

// triageStep pairs a profile field with the question that fills it. Steps are
// consumed strictly in order; the step index on the record is the cursor.
type triageStep struct {
	Field  string
	Prompt string
}

var triageSteps = []triageStep{
	{models.ProfileFieldName, "Hi! Welcome to our health service. What's your name?"},
	{models.ProfileFieldAge, "Hi {name}! What's your age?"},
	{models.ProfileFieldLocation, "What's your location/city?"},
	{models.ProfileFieldConcern, "What brings you here today? Please describe your main health concern."},
}

const (
	triageCompleteTemplate = "Thank you {name}! Your profile is complete. You can now send me images or ask health-related questions."
	triageRepromptMessage  = "Please complete your profile setup by answering the question above."
)

// renderName substitutes the contact's name into a reply template.
func renderName(template, name string) string {
	return strings.ReplaceAll(template, "{name}", name)
}

// triageQuestion returns the question for the record's current step,
// personalized once the name is known.
func triageQuestion(rec *models.ContactRecord) string {
	if rec.TriageStep >= len(triageSteps) {
		return renderName(triageCompleteTemplate, rec.Name("there"))
	}
	return renderName(triageSteps[rec.TriageStep].Prompt, rec.Name("there"))
}

// advanceTriage consumes a non-empty answer for the record's current step:
// the answer is written into the step's profile field, completion is marked
// when the last step was consumed, and the cursor advances by exactly one.
// The caller guarantees the answer is non-empty and the record is mid-triage.
func advanceTriage(rec *models.ContactRecord, answer string) {
	step := rec.TriageStep
	if step >= len(triageSteps) {
		return
	}
	rec.Profile[triageSteps[step].Field] = answer
	if step == len(triageSteps)-1 {
		rec.TriageCompleted = true
	}
	rec.TriageStep++
}

// triageReply returns the outbound reply after a successful advance: the next
// question, or the completion message once the sequence is exhausted.
func triageReply(rec *models.ContactRecord) string {
	return triageQuestion(rec)
}
