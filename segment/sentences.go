// Package segment splits flattened text into sentences.
package segment

import (
	"unicode"
	"unicode/utf8"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"sox/standoff"
)

// SentenceType is annotation type used for sentences.
const SentenceType = "Sentence"

// Range is [Begin, End) byte interval of text.
type Range struct {
	Begin int
	End   int
}

type Splitter struct {
	*sentences.DefaultSentenceTokenizer
}

// NewSplitter returns sentence splitter for the language. Only English
// training data is available, for other languages nil is returned and
// splitting is turned off. Nil splitter is valid, it treats the whole text
// as a single sentence.
func NewSplitter(lang language.Tag, log *zap.Logger) *Splitter {
	if log == nil {
		log = zap.NewNop()
	}
	base, confidence := lang.Base()
	if confidence == language.No {
		log.Warn("Unable to determine language base", zap.Stringer("tag", lang), zap.Stringer("base", base))
		return nil
	}
	if en, _ := language.English.Base(); base != en {
		log.Warn("Unable to find suitable sentence tokenizer model, turning off sentence splitting", zap.Stringer("language", lang))
		return nil
	}
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		log.Warn("Unable to load sentences tokenizer data", zap.Stringer("tag", lang), zap.Error(err))
		return nil
	}
	return &Splitter{tokenizer}
}

// Split returns sentence boundaries. Sentences cover the whole text without
// gaps, whitespace following a sentence belongs to it.
func (s *Splitter) Split(in string) []Range {
	if in == "" {
		return nil
	}
	if s == nil {
		return []Range{{0, len(in)}}
	}

	var (
		ranges []Range
		pos    int
	)
	for _, sentence := range s.Tokenize(in) {
		// gap before sentence start goes to the sentence
		end := min(max(sentence.End, pos), len(in))
		if end == pos {
			continue
		}
		ranges = append(ranges, Range{pos, end})
		pos = end
	}
	if pos < len(in) {
		ranges = append(ranges, Range{pos, len(in)})
	}

	// Tokenizer puts whitespace after the sentence into the next one, move it
	// back where it belongs.
	res := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		begin := skipSpace(in, r.Begin, r.End)
		switch {
		case len(res) == 0:
			res = append(res, r)
		case begin == r.End:
			res[len(res)-1].End = r.End
		default:
			res[len(res)-1].End = begin
			res = append(res, Range{begin, r.End})
		}
	}
	return res
}

func skipSpace(in string, begin, end int) int {
	for begin < end {
		r, size := utf8.DecodeRuneInString(in[begin:end])
		if !unicode.IsSpace(r) {
			break
		}
		begin += size
	}
	return begin
}

// Annotate adds sentence annotations to the store and returns their number.
func (s *Splitter) Annotate(text string, store standoff.Store) int {
	ranges := s.Split(text)
	for _, r := range ranges {
		anno := store.Create(SentenceType)
		anno.Begin, anno.End = r.Begin, r.End
	}
	return len(ranges)
}
