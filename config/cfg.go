package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	ReaderConfig struct {
		TextRoot           string   `yaml:"text_root"`
		PreserveWhitespace bool     `yaml:"preserve_whitespace"`
		SkipEmpty          bool     `yaml:"skip_empty"`
		BlockTags          []string `yaml:"block_tags" validate:"dive,required"`
		IgnoreTags         []string `yaml:"ignore_tags" validate:"dive,required"`
		DocumentType       string   `yaml:"document_type" validate:"required"`
		Sentences          bool     `yaml:"sentences"`
		Language           string   `yaml:"language" validate:"required_unless=Sentences false"`
	}

	RuleConfig struct {
		Selector string            `yaml:"selector" validate:"required"`
		Type     string            `yaml:"type" validate:"required"`
		Global   bool              `yaml:"global"`
		Unique   bool              `yaml:"unique"`
		Features map[string]string `yaml:"features,omitempty" validate:"dive,keys,required,endkeys,required"`
	}

	WriterConfig struct {
		// Encoding overrides encoding declared by the source document.
		Encoding string `yaml:"encoding"`
		// XMLDeclaration adds XML declaration to documents which have none.
		XMLDeclaration bool `yaml:"xml_declaration"`
		// Inline lists annotation types rendered as markup in place of
		// source elements.
		Inline []string `yaml:"inline"`
	}

	OutputConfig struct {
		Format       string `yaml:"format" validate:"oneof=yaml ion ion-binary"`
		SlugNames    bool   `yaml:"slug_names"`
		NameTemplate string `yaml:"name_template"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Reader    ReaderConfig   `yaml:"reader"`
		Rules     []RuleConfig   `yaml:"rules" validate:"dive"`
		Writer    WriterConfig   `yaml:"writer"`
		Output    OutputConfig   `yaml:"output"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

// NOTE: must match yaml field name above
const NameTemplateFieldName = "name_template"

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(NameTemplateFieldName),
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to
// provide sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a
// byte slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}

// Ignored reports whether tag is listed in ignore_tags.
func (conf *ReaderConfig) Ignored(tag string) bool {
	for _, t := range conf.IgnoreTags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
