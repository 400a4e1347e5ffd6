package explain

// isVowel reports whether r is a short or long vowel mark of the phonetic
// script.
func isVowel(r rune) bool {
	switch r {
	case 'َ', 'ُ', 'ِ', 'ا', 'ۥ', 'ۦ':
		return true
	}
	return false
}

// ChunkPhonemes splits phonetic-script text into phoneme groups. A group is
// a run of one repeated consonant followed by the vowels that follow it.
// Vowels with no consonant before them form a group of their own.
func ChunkPhonemes(text string) []string {
	var (
		groups  []string
		cur     []rune
		inVowel bool
	)
	flush := func() {
		if len(cur) > 0 {
			groups = append(groups, string(cur))
		}
		cur, inVowel = nil, false
	}

	for _, r := range text {
		switch {
		case isVowel(r):
			cur = append(cur, r)
			inVowel = true
		case len(cur) > 0 && !inVowel && cur[len(cur)-1] == r:
			cur = append(cur, r)
		default:
			flush()
			cur = append(cur, r)
		}
	}
	flush()
	if groups == nil {
		return []string{}
	}
	return groups
}
