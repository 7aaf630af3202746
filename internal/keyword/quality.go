package keyword

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

const (
	minTermLength     = 4
	maxConsonantRatio = 0.75
	consonantCheckLen = 5
)

// genericPatterns are terms that pass the stop-word list but say nothing
// about what a conversation is about.
var genericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(talk|chat|speak|discuss|convers)(s|ed|ing|er|ers|ion|ions|ation|ations)?$`),
	regexp.MustCompile(`^(example|sample|test|demo)(s|ed|ing)?$`),
	regexp.MustCompile(`^(message|reply|replie|respond|answer)(s|ed|ing)?$`),
	regexp.MustCompile(`^(someth|anyth|everyth|noth)ing$`),
	regexp.MustCompile(`^(hmm+|umm+|uhh+|ahh+|haha+|lol+)$`),
	regexp.MustCompile(`^(thank|please|sorry)(s|ful|fully)?$`),
	regexp.MustCompile(`^(morning|evening|afternoon|night)s?$`),
	regexp.MustCompile(`^(user|assistant|system)s?$`),
}

func isVowel(r rune) bool {
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u', 'y',
		'à', 'á', 'â', 'ä', 'è', 'é', 'ê', 'ë', 'ì', 'í', 'î', 'ï', 'ò', 'ó', 'ô', 'ö', 'ù', 'ú', 'û', 'ü':
		return true
	}
	return false
}

func isNumeric(term string) bool {
	for _, r := range term {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return term != ""
}

// hasRepeatRun reports three or more identical consecutive characters.
func hasRepeatRun(term string) bool {
	var prev rune
	run := 0
	for _, r := range term {
		if r == prev {
			run++
			if run >= 3 {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

// passesQuality applies the length, stop-word and quality gates to a
// lowercased token.
func passesQuality(term string) bool {
	n := utf8.RuneCountInString(term)
	if n < minTermLength {
		return false
	}
	if IsStopWord(term) || isNumeric(term) {
		return false
	}
	if hasRepeatRun(term) {
		return false
	}

	vowels, consonants := 0, 0
	for _, r := range term {
		switch {
		case isVowel(r):
			vowels++
		case unicode.IsLetter(r):
			consonants++
		}
	}
	if vowels == 0 {
		return false
	}
	if n > consonantCheckLen && float64(consonants)/float64(n) > maxConsonantRatio {
		return false
	}

	for _, p := range genericPatterns {
		if p.MatchString(term) {
			return false
		}
	}
	return true
}
