// Package catalog maps logger slugs and message keys to display templates.
// Each logger registers its known messages at startup; the query engine uses
// the registry to expand free-text search across templates, and callers use
// it to render stored message keys.
package catalog

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// DefaultLang is the language used when no localized template matches.
const DefaultLang = "en"

// Registry holds the message catalogs of all registered loggers.
type Registry struct {
	mu        sync.RWMutex
	loggers   map[string]map[string]map[string]string // slug -> lang -> key -> template
	supported []language.Tag
	matcher   language.Matcher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		loggers: make(map[string]map[string]map[string]string),
	}
	r.rebuildMatcher([]string{DefaultLang})
	return r
}

// rebuildMatcher rebuilds the language matcher. Caller must hold the lock
// (or be the constructor).
func (r *Registry) rebuildMatcher(langs []string) {
	tags := make([]language.Tag, 0, len(langs))
	for _, lang := range langs {
		tag, err := language.Parse(lang)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
	}
	r.supported = tags
	r.matcher = language.NewMatcher(tags)
}

// Builder registers messages for one logger. Obtained from Register.
type Builder struct {
	reg  *Registry
	slug string
}

// Register starts (or continues) registration of messages for a logger slug.
func (r *Registry) Register(slug string) *Builder {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loggers[slug] == nil {
		r.loggers[slug] = make(map[string]map[string]string)
	}
	return &Builder{reg: r, slug: slug}
}

// Add registers a template for a message key in the default language.
func (b *Builder) Add(key, template string) *Builder {
	return b.AddLocalized(DefaultLang, key, template)
}

// AddLocalized registers a template for a message key in a specific language.
func (b *Builder) AddLocalized(lang, key, template string) *Builder {
	r := b.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	langs := r.loggers[b.slug]
	if langs[lang] == nil {
		langs[lang] = make(map[string]string)
	}
	langs[lang][key] = template

	// Track newly seen languages for the matcher.
	seen := map[string]bool{DefaultLang: true}
	all := []string{DefaultLang}
	for _, byLang := range r.loggers {
		for l := range byLang {
			if !seen[l] {
				seen[l] = true
				all = append(all, l)
			}
		}
	}
	sort.Strings(all)
	r.rebuildMatcher(all)

	return b
}

// Translate looks up the default-language template for a logger's message
// key. A miss returns ("", false), never an error.
func (r *Registry) Translate(slug, key string) (string, bool) {
	return r.TranslateLang(slug, key, DefaultLang)
}

// TranslateLang looks up a template in the best matching language for the
// given Accept-Language value, falling back to the default language.
func (r *Registry) TranslateLang(slug, key, acceptLang string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	langs, ok := r.loggers[slug]
	if !ok {
		return "", false
	}

	lang := r.matchLanguage(acceptLang)
	if templates, ok := langs[lang]; ok {
		if tpl, ok := templates[key]; ok {
			return tpl, true
		}
	}
	if lang != DefaultLang {
		if templates, ok := langs[DefaultLang]; ok {
			if tpl, ok := templates[key]; ok {
				return tpl, true
			}
		}
	}
	return "", false
}

// matchLanguage resolves an Accept-Language value against the registered
// languages. Caller must hold at least a read lock.
func (r *Registry) matchLanguage(acceptLang string) string {
	if acceptLang == "" {
		return DefaultLang
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLang)
	if err != nil || len(tags) == 0 {
		tag, err := language.Parse(acceptLang)
		if err != nil {
			return DefaultLang
		}
		tags = []language.Tag{tag}
	}
	_, idx, _ := r.matcher.Match(tags...)
	if idx >= 0 && idx < len(r.supported) {
		return r.supported[idx].String()
	}
	return DefaultLang
}

// Loggers returns the registered logger slugs, sorted.
func (r *Registry) Loggers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slugs := make([]string, 0, len(r.loggers))
	for slug := range r.loggers {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Has reports whether the logger slug has any registered messages.
func (r *Registry) Has(slug string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.loggers[slug]) > 0
}

// SearchKeys returns the message keys of a logger whose default-language
// template contains the given token, case-insensitively. Used by the query
// engine to extend free-text search over translated templates.
func (r *Registry) SearchKeys(slug, token string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	templates := r.loggers[slug][DefaultLang]
	if len(templates) == 0 {
		return nil
	}

	needle := strings.ToLower(token)
	var keys []string
	for key, tpl := range templates {
		if strings.Contains(strings.ToLower(tpl), needle) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Interpolate substitutes {placeholder} tokens in a template with values
// from the context map. Reserved keys (underscore prefix) never interpolate.
func Interpolate(template string, context map[string]string) string {
	if len(context) == 0 || !strings.Contains(template, "{") {
		return template
	}

	pairs := make([]string, 0, len(context)*2)
	for k, v := range context {
		if strings.HasPrefix(k, "_") {
			continue
		}
		pairs = append(pairs, "{"+k+"}", v)
	}
	if len(pairs) == 0 {
		return template
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
