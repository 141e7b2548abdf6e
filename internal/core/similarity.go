package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/nishio/ai-project-manager/pkg/models"
)

// DefaultSimilarityThreshold is used when no threshold is configured.
const DefaultSimilarityThreshold = 0.8

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func runeTokens(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// TextSimilarity returns the sequence-matcher ratio of the normalized texts,
// in [0,1]. Empty input scores 0. Arguments are compared in a fixed order
// so the score does not depend on which text comes first.
func TextSimilarity(a, b string) float64 {
	a, b = normalizeText(a), normalizeText(b)
	if a == "" || b == "" {
		return 0
	}
	if b < a {
		a, b = b, a
	}
	return difflib.NewMatcher(runeTokens(a), runeTokens(b)).Ratio()
}

// SimilarPair is one pair of tasks whose title or description is similar.
type SimilarPair struct {
	A, B             string
	TitleScore       float64
	DescriptionScore float64
}

// Score is the larger of the two ratios.
func (p SimilarPair) Score() float64 {
	if p.TitleScore > p.DescriptionScore {
		return p.TitleScore
	}
	return p.DescriptionScore
}

// Note describes both ratios for the similar_tasks entry.
func (p SimilarPair) Note() string {
	return fmt.Sprintf("title similarity: %.2f, description similarity: %.2f", p.TitleScore, p.DescriptionScore)
}

// FindSimilarPairs compares every pair of tasks and keeps those whose title
// or description ratio is strictly above threshold.
func FindSimilarPairs(tasks []models.Task, threshold float64) []SimilarPair {
	var pairs []SimilarPair
	for i := range tasks {
		for j := i + 1; j < len(tasks); j++ {
			t1, t2 := tasks[i], tasks[j]
			if t1.ID == t2.ID {
				continue
			}
			p := SimilarPair{
				A:                t1.ID,
				B:                t2.ID,
				TitleScore:       TextSimilarity(t1.Title, t2.Title),
				DescriptionScore: TextSimilarity(t1.Description, t2.Description),
			}
			if p.TitleScore > threshold || p.DescriptionScore > threshold {
				pairs = append(pairs, p)
			}
		}
	}
	return pairs
}

// DetectSimilar returns, for every task with at least one similar partner,
// the similar_tasks entries it should carry. Entries are symmetric.
func DetectSimilar(tasks []models.Task, threshold float64) map[string][]models.SimilarTask {
	out := make(map[string][]models.SimilarTask)
	for _, p := range FindSimilarPairs(tasks, threshold) {
		score := p.Score()
		note := p.Note()
		out[p.A] = append(out[p.A], models.SimilarTask{TaskID: p.B, SimilarityScore: &score, Note: note})
		out[p.B] = append(out[p.B], models.SimilarTask{TaskID: p.A, SimilarityScore: &score, Note: note})
	}
	for id := range out {
		entries := out[id]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].TaskID < entries[j].TaskID })
	}
	return out
}
