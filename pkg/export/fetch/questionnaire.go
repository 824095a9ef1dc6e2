package fetch

import (
	"context"
	"strings"

	"cohortline/exportd/pkg/export"
)

// Questionnaire document and config fields.
const (
	fieldQuestionnaireID   = "questionnaireId"
	fieldQuestionnaireName = "questionnaireName"
	fieldAnswers           = "answers"
	fieldQuestionID        = "questionId"
	fieldQuestion          = "question"
	fieldAnswerText        = "answerText"
	fieldAnswerChoices     = "answerChoices"

	configQuestions      = "questions"
	configName           = "name"
	configQuestionText   = "text"
	configShortCode      = "shortCode"
	configMultipleChoice = "multipleChoice"
	configOptions        = "options"
	configOptionLabel    = "label"
)

// choiceSeparator splits multi-select answers stored as text.
const choiceSeparator = ","

// Questionnaire fetches questionnaire answers. It can split multi-select
// answers into one boolean per option, group records per questionnaire and
// replace question text with short codes.
type Questionnaire struct {
	*Generic
}

// NewQuestionnaire creates a questionnaire fetcher.
func NewQuestionnaire() *Questionnaire {
	return &Questionnaire{Generic: NewGeneric(ModuleQuestionnaire)}
}

// Fetch implements Fetcher.
func (q *Questionnaire) Fetch(ctx context.Context, run *Run, moduleName string) (export.Dataset, error) {
	prims, err := q.primitives(ctx, run, moduleName, fieldQuestionnaireID, export.FieldModuleConfigID)
	if err != nil {
		return nil, err
	}

	out := export.Dataset{moduleName: {}}
	for _, p := range prims {
		schema := newQuestionSchema(p.config)
		if answers, ok := p.doc[fieldAnswers].([]any); ok {
			p.doc[fieldAnswers] = q.reshapeAnswers(run.Request, schema, answers)
		}

		category := moduleName
		if run.Request.SplitByQuestionnaire {
			category = questionnaireName(p, moduleName)
		}
		out[category] = append(out[category], p.record(category))
	}
	if run.Request.SplitByQuestionnaire && len(out[moduleName]) == 0 && len(out) > 1 {
		delete(out, moduleName)
	}
	return out, nil
}

func questionnaireName(p primitive, fallback string) string {
	if p.config != nil {
		if name, ok := p.config.Body[configName].(string); ok && name != "" {
			return name
		}
	}
	if name, ok := p.doc[fieldQuestionnaireName].(string); ok && name != "" {
		return name
	}
	return fallback
}

func (q *Questionnaire) reshapeAnswers(req export.Request, schema questionSchema, answers []any) []any {
	out := make([]any, 0, len(answers))
	for _, item := range answers {
		answer, ok := item.(map[string]any)
		if !ok {
			out = append(out, item)
			continue
		}
		id, _ := answer[fieldQuestionID].(string)
		question, known := schema[id]

		if req.QuestionShortCodes && known && question.shortCode != "" {
			answer[fieldQuestion] = question.shortCode
		} else if _, ok := answer[fieldQuestion]; !ok && known && question.text != "" {
			answer[fieldQuestion] = question.text
		}

		if req.SplitMultipleChoices && known && question.multiple {
			selected := selectedChoices(answer)
			for _, option := range question.options {
				_, picked := selected[option]
				answer[option] = picked
			}
		}
		out = append(out, answer)
	}
	return out
}

// selectedChoices reads the selected options from a list or from a
// comma-separated answer text.
func selectedChoices(answer map[string]any) map[string]struct{} {
	selected := make(map[string]struct{})
	if choices, ok := answer[fieldAnswerChoices].([]any); ok {
		for _, c := range choices {
			if s, ok := c.(string); ok {
				selected[strings.TrimSpace(s)] = struct{}{}
			}
		}
		return selected
	}
	if text, ok := answer[fieldAnswerText].(string); ok {
		for _, s := range strings.Split(text, choiceSeparator) {
			if s = strings.TrimSpace(s); s != "" {
				selected[s] = struct{}{}
			}
		}
	}
	return selected
}

type question struct {
	text      string
	shortCode string
	multiple  bool
	options   []string
}

// questionSchema maps question id to its definition. A nil config yields an
// empty schema and answers pass through unchanged.
type questionSchema map[string]question

func newQuestionSchema(mc *export.ModuleConfig) questionSchema {
	schema := make(questionSchema)
	if mc == nil {
		return schema
	}
	items, _ := mc.Body[configQuestions].([]any)
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m[export.FieldID].(string)
		if id == "" {
			continue
		}
		q := question{}
		q.text, _ = m[configQuestionText].(string)
		q.shortCode, _ = m[configShortCode].(string)
		q.multiple, _ = m[configMultipleChoice].(bool)
		options, _ := m[configOptions].([]any)
		for _, o := range options {
			switch t := o.(type) {
			case string:
				q.options = append(q.options, t)
			case map[string]any:
				if label, ok := t[configOptionLabel].(string); ok {
					q.options = append(q.options, label)
				}
			}
		}
		schema[id] = q
	}
	return schema
}
