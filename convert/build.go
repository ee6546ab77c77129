package convert

import (
	"fmt"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"sox/config"
	"sox/reader"
	"sox/rules"
	"sox/segment"
)

// newReader prepares document reader from program configuration. Rules are
// added in configuration order.
func newReader(cfg *config.Config, preserve bool, log *zap.Logger) (*reader.Reader, error) {
	rc := &cfg.Reader

	opts := []reader.Option{
		reader.WithTextRoot(rc.TextRoot),
		reader.WithPreserveWhitespace(preserve || rc.PreserveWhitespace),
		reader.WithSkipEmpty(rc.SkipEmpty),
		reader.WithBlockTags(rc.BlockTags...),
		reader.WithDocumentType(rc.DocumentType),
		reader.WithLogger(log),
	}
	if len(rc.IgnoreTags) > 0 {
		opts = append(opts, reader.WithIgnore(func(el *etree.Element) bool {
			return rc.Ignored(el.Tag)
		}))
	}
	if rc.Sentences {
		lang, err := language.Parse(rc.Language)
		if err != nil {
			return nil, fmt.Errorf("unable to parse sentences language %q: %w", rc.Language, err)
		}
		opts = append(opts, reader.WithSentences(segment.NewSplitter(lang, log)))
	}

	r := reader.New(opts...)
	for i, rc := range cfg.Rules {
		rule := rules.Rule{Selector: rc.Selector, Type: rc.Type, Global: rc.Global, Unique: rc.Unique}
		if len(rc.Features) > 0 {
			cb, err := rules.FeatureCallback(rc.Features)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): %w", i, rc.Selector, err)
			}
			rule.Callback = cb
		}
		r.Add(rule)
	}
	log.Debug("Reader prepared", zap.Int("rules", len(cfg.Rules)), zap.String("text root", rc.TextRoot))
	return r, nil
}
