package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

type Translator struct {
	lang         string
	translations map[string]string
	prompt       string
}

// NewTranslator loads locales/<lang>.yaml and the matching prompt-<lang>.txt
// from fsys. Pass LocalesFS in production.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", langCode+".yaml")
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, err
	}
	t.lang = langCode

	promptPath := path.Join("locales", "prompt-"+langCode+".txt")
	promptBytes, err := fs.ReadFile(fsys, promptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", promptPath, err)
	}
	t.prompt = strings.TrimSpace(string(promptBytes))
	return t, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

// T returns the message for key, formatted with args. Unknown keys come back
// as the key itself.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

// Prompt is the default system instruction for the assistant in this language.
func (t *Translator) Prompt() string {
	return t.prompt
}

func (t *Translator) Lang() string {
	return t.lang
}
