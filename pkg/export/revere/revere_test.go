package revere

import (
	"strconv"
	"strings"
	"testing"
)

var (
	listA = []string{"drum", "curtain", "bell", "coffee", "school", "parent", "moon", "garden", "hat", "nose"}
	listB = []string{"desk", "ranger", "bird", "shoe", "stove", "mountain", "glasses", "towel", "cloud", "boat"}
)

// fullTest spreads the ten list-A words over the seven list-A trials so
// each word appears in exactly one transcript.
func fullTest() Test {
	transcripts := []string{
		"drum, curtain",
		"belle",
		"coffee school",
		"parents",
		"moon",
		"shoo desk", // interference trial
		"garden hat",
		"knows",
	}
	t := Test{ID: "t1", UserID: "u1", ListA: listA, ListB: listB}
	for _, tr := range transcripts {
		t.Trials = append(t.Trials, Trial{Transcript: tr})
	}
	return t
}

func TestScore_Layout(t *testing.T) {
	table := Score(fullTest(), DefaultHomophones)

	if len(table) != 1+len(listA)+1 {
		t.Fatalf("table has %d rows, want header + 10 + totals", len(table))
	}
	if got := strings.Join(table[0], ","); got != "A,1,2,3,4,5,7,8,B,6" {
		t.Errorf("header = %s", got)
	}
	for i, row := range table[1 : len(table)-1] {
		if row[0] != listA[i] {
			t.Errorf("row %d column A = %q, want %q", i, row[0], listA[i])
		}
		if row[9] != listB[i] {
			t.Errorf("row %d column 6 = %q, want list-B word %q", i, row[9], listB[i])
		}
	}
}

func TestScore_TotalsSumToTen(t *testing.T) {
	totals := Score(fullTest(), DefaultHomophones).Totals()

	sum := 0
	for _, col := range []string{"1", "2", "3", "4", "5", "7", "8"} {
		n, err := strconv.Atoi(totals[col])
		if err != nil {
			t.Fatalf("total %s = %q: %v", col, totals[col], err)
		}
		sum += n
	}
	if sum != 10 {
		t.Errorf("list-A totals sum to %d, want 10 (%v)", sum, totals)
	}
	if totals["A"] != "Total" {
		t.Errorf("totals label = %q", totals["A"])
	}
}

func TestScore_BColumnUsesListB(t *testing.T) {
	table := Score(fullTest(), DefaultHomophones)

	// The interference transcript says "desk" (row 0) and "shoo" for
	// "shoe" (row 3). Row 0's list-A word "drum" must not count there.
	want := map[int]string{0: "Y", 1: "N", 3: "Y"}
	for row, v := range want {
		if got := table[1+row][8]; got != v {
			t.Errorf("row %d B = %q, want %q", row, got, v)
		}
	}
	if got := table.Totals()["B"]; got != "2" {
		t.Errorf("B total = %q, want 2", got)
	}
}

func TestScore_MissingTrials(t *testing.T) {
	test := Test{ID: "t2", ListA: listA, ListB: listB, Trials: []Trial{{Transcript: "drum"}}}
	table := Score(test, nil)
	if table[1][1] != "Y" || table[1][2] != "N" {
		t.Errorf("row = %v", table[1])
	}
}

func TestParseTest(t *testing.T) {
	doc := map[string]any{
		"id":        "t1",
		"userId":    "u1",
		"wordListA": []any{"drum"},
		"wordListB": []any{"desk"},
		"results": []any{
			map[string]any{"transcript": "drum", "audio": map[string]any{"bucket": "b", "key": "k/1.m4a"}},
			map[string]any{"transcript": "x"},
		},
	}
	test, err := ParseTest(doc)
	if err != nil {
		t.Fatalf("ParseTest() failed: %v", err)
	}
	if len(test.Trials) != 2 || test.Trials[0].Audio == nil || test.Trials[0].Audio.Key != "k/1.m4a" {
		t.Errorf("ParseTest() = %+v", test)
	}
	if test.Trials[1].Audio != nil {
		t.Error("trial without audio should have nil ref")
	}

	if _, err := ParseTest(map[string]any{"id": "x"}); err == nil {
		t.Error("test without list A should fail")
	}
}

func TestSideFile(t *testing.T) {
	f, err := SideFile(fullTest(), DefaultHomophones)
	if err != nil {
		t.Fatalf("SideFile() failed: %v", err)
	}
	if f.Path != "RevereTest/u1/t1_scores.csv" {
		t.Errorf("Path = %q", f.Path)
	}
	if !strings.HasPrefix(string(f.Content), "A,1,2,3,4,5,7,8,B,6\n") {
		t.Errorf("content = %s", f.Content)
	}
}
