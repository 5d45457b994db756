// Package wizard implements the multi-step prediction form: fixed sequential
// steps, forward/back transitions and the final submission payload.
package wizard

import (
	"strings"
)

// Field describes one named input of a step. Options is non-empty for
// single-select fields; all values stay strings, no coercion happens here.
type Field struct {
	Name     string
	Label    string
	Required bool
	Options  []string
}

// StepDefinition is one step of the wizard with its fixed field set.
type StepDefinition struct {
	Name   string
	Fields []Field
}

// Steps is the fixed step sequence. The layout mirrors the prediction
// request: personal details, background, academics, then model choice and
// review.
var Steps = []StepDefinition{
	{
		Name: "Personal",
		Fields: []Field{
			{Name: "name", Label: "Name", Required: true},
			{Name: "dateOfBirth", Label: "Date of Birth", Required: true},
			{Name: "gender", Label: "Gender", Required: true, Options: []string{"Male", "Female", "Other"}},
			{Name: "mobileNumber", Label: "Mobile Number", Required: true},
			{Name: "email", Label: "Email", Required: true},
		},
	},
	{
		Name: "Basic",
		Fields: []Field{
			{Name: "religion", Label: "Religion", Required: true},
			{Name: "category", Label: "Category", Required: true, Options: []string{"general", "obc", "sc", "st", "mbc", "bcm"}},
		},
	},
	{
		Name: "Academic",
		Fields: []Field{
			{Name: "course", Label: "Course", Required: true, Options: []string{"pcm", "pcb", "pcmb"}},
			{Name: "stream", Label: "Stream", Required: true, Options: []string{"science", "commerce", "arts"}},
			{Name: "degree", Label: "Degree", Required: true, Options: []string{"bsc", "bca", "ba", "bcom", "bba"}},
			{Name: "class12Percentage", Label: "Class 12 Percentage", Required: true},
		},
	},
	{
		Name: "Final",
		Fields: []Field{
			{Name: "model", Label: "Prediction Model", Required: false, Options: []string{"default", "logistic", "forest"}},
		},
	},
}

// payloadKeys maps wizard field names to the keys the prediction
// collaborator expects.
var payloadKeys = map[string]string{
	"name":              "name",
	"dateOfBirth":       "date_of_birth",
	"mobileNumber":      "mobile_number",
	"gender":            "gender",
	"email":             "email",
	"religion":          "religion",
	"course":            "course",
	"stream":            "stream",
	"degree":            "degree",
	"category":          "category",
	"class12Percentage": "class_12_percentage",
	"model":             "model",
}

// State is the in-progress form data: the active step index plus every field
// value entered so far. Created fresh on wizard mount, discarded on
// navigation away.
type State struct {
	ActiveStep int
	Values     map[string]string
}

// NewState creates a wizard positioned at the first step with no values.
func NewState() *State {
	return &State{Values: make(map[string]string)}
}

// StepCount returns the number of steps.
func StepCount() int { return len(Steps) }

// Current returns the definition of the active step.
func (s *State) Current() StepDefinition {
	return Steps[s.ActiveStep]
}

// AtLastStep reports whether submit is enabled.
func (s *State) AtLastStep() bool {
	return s.ActiveStep == len(Steps)-1
}

// SetFields stores the submitted values of the active step. Values are
// trimmed; fields not belonging to the active step are ignored.
func (s *State) SetFields(form map[string]string) {
	for _, f := range Steps[s.ActiveStep].Fields {
		if v, ok := form[f.Name]; ok {
			s.Values[f.Name] = strings.TrimSpace(v)
		}
	}
}

// StepComplete reports whether every required field of the active step is
// non-empty.
func (s *State) StepComplete() bool {
	for _, f := range Steps[s.ActiveStep].Fields {
		if f.Required && s.Values[f.Name] == "" {
			return false
		}
	}
	return true
}

// Advance moves to the next step. It only advances past a step whose
// required fields are all non-empty, and is a no-op at the last step.
// The return value reports whether the index changed.
func (s *State) Advance() bool {
	if s.AtLastStep() || !s.StepComplete() {
		return false
	}
	s.ActiveStep++
	return true
}

// Retreat moves back one step unconditionally; no-op at step 0.
func (s *State) Retreat() {
	if s.ActiveStep > 0 {
		s.ActiveStep--
	}
}

// Payload assembles the entered values into the prediction request body,
// translated to the collaborator's expected keys. Only meaningful at the
// last step.
func (s *State) Payload() map[string]string {
	payload := make(map[string]string, len(payloadKeys))
	for field, key := range payloadKeys {
		if v := s.Values[field]; v != "" {
			payload[key] = v
		}
	}
	return payload
}
