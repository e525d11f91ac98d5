package normalize

import "github.com/opensource-finance/settle/internal/domain"

// Vocabulary is one source's status lexicon. Cancelled and Returned entries
// are substrings; Delivered entries are whole terms.
type Vocabulary struct {
	Cancelled []string
	Returned  []string
	Delivered []string
}

var baseVocabulary = Vocabulary{
	Cancelled: []string{"cancel"},
	Returned:  []string{"return"},
	Delivered: []string{"delivered", "transferred"},
}

// vocabularies adds each source's own terms to the base lexicon.
var vocabularies = map[domain.Source]Vocabulary{
	domain.SourceRapidPost: baseVocabulary,
	domain.SourceCityLink: baseVocabulary.extend(Vocabulary{
		Delivered: []string{"payment transferred"},
	}),
	domain.SourceStorefront: baseVocabulary.extend(Vocabulary{
		Cancelled: []string{"voided"},
		Returned:  []string{"refund"},
		Delivered: []string{"completed"},
	}),
}

// extend returns v with extra's terms appended. v's slices are not shared.
func (v Vocabulary) extend(extra Vocabulary) Vocabulary {
	join := func(a, b []string) []string {
		out := make([]string, 0, len(a)+len(b))
		return append(append(out, a...), b...)
	}
	return Vocabulary{
		Cancelled: join(v.Cancelled, extra.Cancelled),
		Returned:  join(v.Returned, extra.Returned),
		Delivered: join(v.Delivered, extra.Delivered),
	}
}

// VocabularyFor returns the lexicon for a source, falling back to the base one.
func VocabularyFor(src domain.Source) Vocabulary {
	if v, ok := vocabularies[src]; ok {
		return v
	}
	return baseVocabulary
}
