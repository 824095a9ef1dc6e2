// Package revere builds the scoring table of a Revere word-recall test.
//
// A test administers eight trials. Trials 1 to 5 and the two delayed
// recalls are scored against word list A; the sixth administered trial is
// the interference trial scored against list B. The table has ten columns:
//
//	A | 1 2 3 4 5 | 7 8 | B | 6
//
// Column A holds the list-A target word, columns 1 to 5 the learning
// trials, 7 and 8 the delayed recalls, B the interference trial and 6 the
// list-B word the B column was scored against. A trailing row totals the
// matches per trial column.
package revere

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"cohortline/exportd/pkg/export"
)

// Header is the fixed column layout of the scoring table.
var Header = []string{"A", "1", "2", "3", "4", "5", "7", "8", "B", "6"}

// TrialCount is the number of administered trials.
const TrialCount = 8

// interferenceTrial is the index of the list-B trial in administration order.
const interferenceTrial = 5

// trialColumns maps administration order to table column.
var trialColumns = [TrialCount]int{1, 2, 3, 4, 5, 8, 6, 7}

// listBColumn holds the list-B word of each row.
const listBColumn = 9

const (
	yes      = "Y"
	no       = "N"
	totalRow = "Total"
)

// Trial is one administered trial.
type Trial struct {
	Transcript string
	Audio      *export.ObjectRef
}

// Test is one Revere test submission.
type Test struct {
	ID        string
	UserID    string
	StartTime time.Time
	ListA     []string
	ListB     []string
	Trials    []Trial
}

// Field names of a stored Revere test.
const (
	FieldListA      = "wordListA"
	FieldListB      = "wordListB"
	FieldResults    = "results"
	FieldTranscript = "transcript"
	FieldAudio      = "audio"
)

// ParseTest reads a test from a stored document. Missing trials are
// treated as empty transcripts.
func ParseTest(doc map[string]any) (Test, error) {
	t := Test{
		ListA: stringList(doc[FieldListA]),
		ListB: stringList(doc[FieldListB]),
	}
	t.ID, _ = doc[export.FieldID].(string)
	t.UserID, _ = doc[export.FieldUserID].(string)
	t.StartTime, _ = export.TimeValue(doc[export.FieldStartDateTime])
	if len(t.ListA) == 0 {
		return Test{}, fmt.Errorf("revere test %s has no word list A", t.ID)
	}

	results, _ := doc[FieldResults].([]any)
	for _, item := range results {
		m, _ := item.(map[string]any)
		trial := Trial{}
		trial.Transcript, _ = m[FieldTranscript].(string)
		if ref, ok := ObjectRefOf(m[FieldAudio]); ok {
			trial.Audio = &ref
		}
		t.Trials = append(t.Trials, trial)
	}
	return t, nil
}

// ObjectRefOf reads a {bucket, key} map.
func ObjectRefOf(v any) (export.ObjectRef, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return export.ObjectRef{}, false
	}
	bucket, _ := m["bucket"].(string)
	key, _ := m["key"].(string)
	if bucket == "" || key == "" {
		return export.ObjectRef{}, false
	}
	return export.ObjectRef{Bucket: bucket, Key: key}, true
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Homophones maps a canonical word to the spellings transcription may
// produce for it.
type Homophones map[string][]string

// DefaultHomophones covers the standard word lists.
var DefaultHomophones = Homophones{
	"bell":     {"belle"},
	"colour":   {"color"},
	"nose":     {"knows", "noes"},
	"moon":     {"mune"},
	"hat":      {"hatt"},
	"house":    {"hows"},
	"river":    {"rivers"},
	"garden":   {"guarden"},
	"parent":   {"parents"},
	"turkey":   {"turkie"},
	"shoe":     {"shoo", "shue"},
	"towel":    {"towl"},
	"lamb":     {"lam"},
	"boat":     {"bote"},
	"church":   {"churches"},
	"glasses":  {"glass"},
	"mountain": {"mountains"},
}

// normalizer maps every known spelling to its canonical word.
type normalizer map[string]string

func newNormalizer(h Homophones) normalizer {
	n := make(normalizer)
	for canonical, spellings := range h {
		c := strings.ToLower(canonical)
		for _, s := range spellings {
			n[strings.ToLower(s)] = c
		}
	}
	return n
}

func (n normalizer) word(w string) string {
	w = strings.ToLower(w)
	if c, ok := n[w]; ok {
		return c
	}
	return w
}

// words returns the normalized words of a transcript.
func (n normalizer) words(transcript string) map[string]struct{} {
	fields := strings.FieldsFunc(transcript, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[n.word(f)] = struct{}{}
	}
	return out
}

// Table is a rendered scoring table including the header and totals rows.
type Table [][]string

// Score builds the scoring table of a test.
func Score(t Test, h Homophones) Table {
	norm := newNormalizer(h)
	said := make([]map[string]struct{}, TrialCount)
	for i := range said {
		if i < len(t.Trials) {
			said[i] = norm.words(t.Trials[i].Transcript)
		} else {
			said[i] = map[string]struct{}{}
		}
	}

	table := Table{append([]string(nil), Header...)}
	totals := make([]int, len(Header))
	for row, word := range t.ListA {
		line := make([]string, len(Header))
		line[0] = word
		listB := ""
		if row < len(t.ListB) {
			listB = t.ListB[row]
		}
		line[listBColumn] = listB

		for trial, col := range trialColumns {
			target := word
			if trial == interferenceTrial {
				target = listB
			}
			if _, hit := said[trial][norm.word(target)]; hit {
				line[col] = yes
				totals[col]++
			} else {
				line[col] = no
			}
		}
		table = append(table, line)
	}

	footer := make([]string, len(Header))
	footer[0] = totalRow
	for _, col := range trialColumns {
		footer[col] = fmt.Sprint(totals[col])
	}
	return append(table, footer)
}

// Totals returns the totals row keyed by column name.
func (t Table) Totals() map[string]string {
	if len(t) < 2 {
		return nil
	}
	last := t[len(t)-1]
	out := make(map[string]string, len(Header))
	for i, name := range Header {
		out[name] = last[i]
	}
	return out
}

// CSV renders the table.
func (t Table) CSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(t); err != nil {
		return nil, fmt.Errorf("write revere table: %w", err)
	}
	return buf.Bytes(), nil
}

// SideFile renders the scoring table of a test as an output file.
func SideFile(t Test, h Homophones) (export.File, error) {
	content, err := Score(t, h).CSV()
	if err != nil {
		return export.File{}, err
	}
	return export.File{Path: SideFilePath(t), Content: content}, nil
}

// SideFilePath is the deterministic location of a test's scoring table.
func SideFilePath(t Test) string {
	return path.Join("RevereTest", safe(t.UserID), safe(t.ID)+"_scores.csv")
}

func safe(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.NewReplacer("/", "_", "\\", "_").Replace(s)
}
