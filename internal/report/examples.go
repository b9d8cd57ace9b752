package report

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"topiclens/internal/domain"
)

const exampleSnippetChars = 220

type sparseVec = map[int]float64

// SelectExamples picks the k most representative conversations of a
// partition: TF-IDF vectors scored by cosine similarity against the
// partition centroid. Representative beats recent for an illustrative
// example.
func SelectExamples(records []domain.Conversation, k int) []string {
	if k < 1 || len(records) == 0 {
		return nil
	}
	if len(records) <= k {
		out := make([]string, 0, len(records))
		for _, conv := range records {
			if s := snippet(conv); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	// Build vocabulary and document frequency.
	vocab := make(map[string]int)
	tokenized := make([][]string, len(records))
	for i, conv := range records {
		tokenized[i] = tokenize(conv.CustomerText())
		for _, tok := range tokenized[i] {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(vocab)
			}
		}
	}
	df := make([]int, len(vocab))
	for _, toks := range tokenized {
		seen := make(map[int]bool)
		for _, tok := range toks {
			seen[vocab[tok]] = true
		}
		for id := range seen {
			df[id]++
		}
	}
	idf := make([]float64, len(vocab))
	for id, n := range df {
		idf[id] = math.Log(float64(len(records)+1) / float64(n+1))
	}

	docs := make([]sparseVec, len(records))
	centroid := make(sparseVec)
	for i, toks := range tokenized {
		docs[i] = vectorize(toks, vocab, idf)
		for id, w := range docs[i] {
			centroid[id] += w / float64(len(records))
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, 0, len(records))
	for i := range records {
		ranked = append(ranked, scored{idx: i, score: cosine(docs[i], centroid)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].idx < ranked[j].idx
	})

	var out []string
	for _, r := range ranked {
		if s := snippet(records[r.idx]); s != "" {
			out = append(out, s)
		}
		if len(out) == k {
			break
		}
	}
	return out
}

func tokenize(s string) []string {
	s = strings.ToLower(s)
	var tokens []string
	var cur strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

func vectorize(tokens []string, vocab map[string]int, idf []float64) sparseVec {
	vec := make(sparseVec)
	for _, tok := range tokens {
		if id, ok := vocab[tok]; ok {
			vec[id] += idf[id]
		}
	}
	return vec
}

func cosine(a, b sparseVec) float64 {
	var dot, normA, normB float64
	for id, w := range a {
		normA += w * w
		if bw, ok := b[id]; ok {
			dot += w * bw
		}
	}
	for _, w := range b {
		normB += w * w
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func snippet(conv domain.Conversation) string {
	text := strings.TrimSpace(conv.CustomerText())
	runes := []rune(text)
	if len(runes) > exampleSnippetChars {
		text = string(runes[:exampleSnippetChars]) + "..."
	}
	return text
}
