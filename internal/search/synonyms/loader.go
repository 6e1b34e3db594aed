package synonyms

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/helpfront/searchsync/internal/search"
	"github.com/helpfront/searchsync/pkg/logger"
)

// overlayLocale is the locale-independent overlay applied on top of every
// locale's dictionary.
const overlayLocale = "_all"

// Compiled is the immutable result of compiling one locale. Reloads produce
// a fresh value; nothing mutates a Compiled after construction.
type Compiled struct {
	Locale   string
	Rules    RuleSet
	Analysis search.Analysis
}

// Loader reads synonym and character-mapping dictionaries from a directory:
// {dir}/{locale}.txt, {dir}/_all.txt, {dir}/charmap/{locale}.txt and
// {dir}/charmap/_all.txt.
type Loader struct {
	dir    string
	logger *slog.Logger
}

func NewLoader(dir string) *Loader {
	return &Loader{
		dir:    dir,
		logger: logger.WithComponent("synonyms"),
	}
}

// Compile reads the locale's dictionary plus the overlay and produces the
// analyzer-ready configuration. It has no side effect on any index.
func (l *Loader) Compile(locale string) (*Compiled, error) {
	rules, err := l.readRules(filepath.Join(l.dir, locale+".txt"), true)
	if err != nil {
		return nil, err
	}
	overlay, err := l.readRules(filepath.Join(l.dir, overlayLocale+".txt"), false)
	if err != nil {
		return nil, err
	}
	rules = groupHyponyms(append(rules, overlay...))

	charMappings, err := l.readCharMappings(locale)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("locale compiled",
		"locale", locale,
		"rules", len(rules),
		"char_mappings", len(charMappings),
	)
	return &Compiled{
		Locale: locale,
		Rules:  rules,
		Analysis: search.Analysis{
			SynonymRules: rules.Solr(),
			CharMappings: charMappings,
		},
	}, nil
}

// Push applies a compiled configuration to a live index. The engine accepts
// query-time synonym updates in place and rejects index-time changes
// (character mappings), which instead require a write migration and reindex.
func (l *Loader) Push(ctx context.Context, eng search.Engine, index string, compiled *Compiled) error {
	if err := eng.UpdateAnalysis(ctx, index, compiled.Analysis); err != nil {
		return fmt.Errorf("pushing %s analyzers to %s: %w", compiled.Locale, index, err)
	}
	l.logger.Info("analyzers pushed", "locale", compiled.Locale, "index", index)
	return nil
}

func (l *Loader) readRules(path string, required bool) (RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil, nil
		}
		return nil, fmt.Errorf("opening synonym file %s: %w", path, err)
	}
	defer f.Close()

	var rules RuleSet
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		rule := parseRule(scanner.Text())
		if len(rule.Terms) == 0 {
			continue
		}
		rules = append(rules, rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading synonym file %s: %w", path, err)
	}
	return rules, nil
}

// readCharMappings loads ordered literal replacement rules. Both files are
// optional; most locales carry none.
func (l *Loader) readCharMappings(locale string) ([]string, error) {
	var mappings []string
	for _, name := range []string{locale, overlayLocale} {
		path := filepath.Join(l.dir, "charmap", name+".txt")
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("opening character mapping file %s: %w", path, err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if !strings.Contains(line, "=>") {
				f.Close()
				return nil, fmt.Errorf("character mapping file %s: malformed line %q", path, line)
			}
			mappings = append(mappings, line)
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading character mapping file %s: %w", path, err)
		}
	}
	return mappings, nil
}
