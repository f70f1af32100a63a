package pipeline

import (
	"testing"

	"pdf-vectorize-go/internal/model"
)

func textEl(order int, text string, size float64) model.Element {
	return model.Element{ID: text, Kind: model.KindText, Page: 1, Text: text, OrderIndex: order, FontSize: size}
}

func TestHeuristicClassifier_Headings(t *testing.T) {
	els := []model.Element{
		textEl(0, "Introduction", 11),
		textEl(1, "Some paragraph text here.", 11),
		textEl(2, "RESULTS OVERVIEW", 11),
		{Kind: model.KindTable, Page: 1, Text: "| a | b |", OrderIndex: 3},
		textEl(4, "2.1 Data sources", 11),
		textEl(5, "A normal sentence.", 11),
		textEl(6, "Large Title", 16),
	}
	got := NewHeuristicClassifier([]string{"Introduction"}).Classify(els)

	want := []model.Section{
		{Label: "Introduction", StartOrderIndex: 0, EndOrderIndex: 1},
		{Label: "RESULTS OVERVIEW", StartOrderIndex: 2, EndOrderIndex: 3},
		{Label: "2.1 Data sources", StartOrderIndex: 4, EndOrderIndex: 5},
		{Label: "Large Title", StartOrderIndex: 6, EndOrderIndex: 6},
	}
	if len(got) != len(want) {
		t.Fatalf("sections = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("section %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestHeuristicClassifier_DefaultBodyAndMultilineKeyword(t *testing.T) {
	els := []model.Element{
		textEl(0, "Opening remarks without a heading.", 11),
		textEl(1, "Conclusion:\nWe conclude things.", 11),
	}
	got := NewHeuristicClassifier([]string{"Conclusion"}).Classify(els)
	if len(got) != 2 {
		t.Fatalf("sections = %+v", got)
	}
	if got[0].Label != model.DefaultSectionLabel || got[0].EndOrderIndex != 0 {
		t.Fatalf("first section = %+v", got[0])
	}
	if got[1].Label != "Conclusion" || got[1].StartOrderIndex != 1 {
		t.Fatalf("second section = %+v", got[1])
	}
}

func TestSectionLabels_Gaps(t *testing.T) {
	label := sectionLabels([]model.Section{{Label: "A", StartOrderIndex: 2, EndOrderIndex: 4}})
	cases := map[int]string{0: model.DefaultSectionLabel, 2: "A", 4: "A", 5: model.DefaultSectionLabel}
	for order, want := range cases {
		if got := label(order); got != want {
			t.Fatalf("label(%d) = %q, want %q", order, got, want)
		}
	}
}

func TestHeuristicClassifier_RomanNumeralNeedsPunctuation(t *testing.T) {
	els := []model.Element{
		textEl(0, "I think the results hold", 11),
		textEl(1, "IV. Results", 11),
		textEl(2, "Values stay within range", 11),
		textEl(3, "II) Methods", 11),
	}
	got := NewHeuristicClassifier(nil).Classify(els)

	want := []model.Section{
		{Label: model.DefaultSectionLabel, StartOrderIndex: 0, EndOrderIndex: 0},
		{Label: "IV. Results", StartOrderIndex: 1, EndOrderIndex: 2},
		{Label: "II) Methods", StartOrderIndex: 3, EndOrderIndex: 3},
	}
	if len(got) != len(want) {
		t.Fatalf("sections = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("section %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
