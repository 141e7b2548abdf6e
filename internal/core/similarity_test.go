package core

import (
	"math"
	"strings"
	"testing"

	"github.com/nishio/ai-project-manager/pkg/models"
)

func TestTextSimilarity(t *testing.T) {
	if got := TextSimilarity("Write report", "write   REPORT"); got != 1 {
		t.Errorf("normalized identical texts = %v, want 1", got)
	}
	if got := TextSimilarity("", "anything"); got != 0 {
		t.Errorf("empty text = %v, want 0", got)
	}
	if got := TextSimilarity("abcd", "wxyz"); got != 0 {
		t.Errorf("disjoint texts = %v, want 0", got)
	}
	mid := TextSimilarity("write the report", "write the summary")
	if mid <= 0 || mid >= 1 {
		t.Errorf("partial overlap = %v, want in (0,1)", mid)
	}
}

func TestTextSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"buy milk", "buy silk"},
		{"レポートを書く", "レポートを読む"},
		{"plan the trip to Kyoto", "trip planning"},
	}
	for _, p := range pairs {
		ab, ba := TextSimilarity(p[0], p[1]), TextSimilarity(p[1], p[0])
		if math.Abs(ab-ba) > 1e-12 {
			t.Errorf("TextSimilarity not symmetric for %q/%q: %v vs %v", p[0], p[1], ab, ba)
		}
	}
}

func TestFindSimilarPairs(t *testing.T) {
	tasks := []models.Task{
		{ID: "T0001", Title: "Prepare quarterly report", Description: "numbers"},
		{ID: "T0002", Title: "Prepare quarterly reports", Description: "other"},
		{ID: "T0003", Title: "Book dentist", Description: "teeth"},
	}
	pairs := FindSimilarPairs(tasks, 0.8)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %+v", pairs)
	}
	p := pairs[0]
	if p.A != "T0001" || p.B != "T0002" {
		t.Errorf("unexpected pair: %+v", p)
	}
	if p.Score() != p.TitleScore {
		t.Errorf("score should be the title ratio here: %+v", p)
	}
	if !strings.HasPrefix(p.Note(), "title similarity: 0.9") {
		t.Errorf("unexpected note: %q", p.Note())
	}
}

func TestFindSimilarPairs_ThresholdIsStrict(t *testing.T) {
	tasks := []models.Task{
		{ID: "T0001", Title: "same"},
		{ID: "T0002", Title: "same"},
	}
	if pairs := FindSimilarPairs(tasks, 1); len(pairs) != 0 {
		t.Errorf("score equal to threshold must not match: %+v", pairs)
	}
}

func TestDetectSimilar_Symmetric(t *testing.T) {
	tasks := []models.Task{
		{ID: "T0003", Title: "Renew passport"},
		{ID: "T0001", Title: "Renew passport!"},
		{ID: "T0002", Title: "Renew passport."},
	}
	out := DetectSimilar(tasks, 0.8)
	if len(out) != 3 {
		t.Fatalf("expected entries for all three tasks, got %v", out)
	}
	for id, entries := range out {
		if len(entries) != 2 {
			t.Errorf("%s: expected 2 entries, got %d", id, len(entries))
		}
		if entries[0].TaskID > entries[1].TaskID {
			t.Errorf("%s: entries not sorted: %+v", id, entries)
		}
		for _, e := range entries {
			if e.SimilarityScore == nil || *e.SimilarityScore <= 0.8 {
				t.Errorf("%s: bad score in %+v", id, e)
			}
			back := false
			for _, r := range out[e.TaskID] {
				if r.TaskID == id {
					back = true
				}
			}
			if !back {
				t.Errorf("%s -> %s has no reverse entry", id, e.TaskID)
			}
		}
	}
}
