// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

package search

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	minWordLength = 2
	maxWordLength = 50
)

// stopWords are filtered out of every indexed text. English, German and
// French, stored in normalized form so they match post-normalization tokens.
var stopWords = map[string]struct{}{}

func init() {
	for _, word := range []string{
		"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
		"of", "with", "by", "from", "up", "about", "into", "through", "during",
		"before", "after", "above", "below", "between", "among", "around",
		"is", "are", "was", "were", "be", "been", "being", "have", "has", "had",
		"do", "does", "did", "will", "would", "should", "could", "can", "may",
		"might", "must", "shall",
		// German
		"der", "die", "das", "den", "dem", "des", "ein", "eine", "einer", "eines",
		"und", "oder", "aber", "mit", "von", "zu", "auf", "fur", "bei",
		"ist", "sind", "war", "waren", "hat", "haben", "wird", "werden",
		// French
		"le", "la", "les", "un", "une", "du", "de", "et", "ou", "mais",
		"avec", "dans", "sur", "pour", "par", "est", "sont", "etait", "etaient",
	} {
		stopWords[word] = struct{}{}
	}
}

// diacriticStripper decomposes characters and drops the combining marks, so
// "café" and "cafe" index to the same term.
var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalize lowercases text and strips diacritics.
func normalize(text string) string {
	lowered := strings.ToLower(text)
	stripped, _, err := transform.String(diacriticStripper, lowered)
	if err != nil {
		return lowered
	}
	return stripped
}

// tokenize extracts the set of indexable terms from text: normalized words
// of 2 to 50 characters, excluding stop words and pure numbers. The result
// is sorted and deduplicated.
func tokenize(text string) []string {
	words := strings.FieldsFunc(normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	seen := make(map[string]struct{}, len(words))
	for _, word := range words {
		if len(word) < minWordLength || len(word) > maxWordLength {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		if isDigits(word) {
			continue
		}
		seen[word] = struct{}{}
	}

	terms := make([]string, 0, len(seen))
	for term := range seen {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

func isDigits(word string) bool {
	for _, r := range word {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(word) > 0
}
