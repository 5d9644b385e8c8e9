// Package extraction provides the built-in entity parser: dictionary-based
// synonym normalization, typo correction, and regex extraction over
// free-text administrative requests.
//
// The primary extractor applies the full dictionary set and scores
// entities by pattern specificity. The fallback extractor is pure regex,
// lower precision, and always available; the orchestrator merges its
// output when extraction confidence is low.
package extraction

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/halcyonlabs/admind/internal/entity"
)

// Dictionaries holds the synonym and typo-correction tables used to
// normalize request text before extraction.
type Dictionaries struct {
	// Synonyms maps a canonical term to the phrases that mean it.
	Synonyms map[string][]string

	// Corrections maps a regex (word-bounded) to its replacement, fixing
	// known typos before extraction.
	Corrections map[string]string
}

// DefaultDictionaries returns the built-in dictionaries.
func DefaultDictionaries() Dictionaries {
	return Dictionaries{
		Synonyms: map[string][]string{
			"Admin":      {"administrator", "sysadmin", "it admin"},
			"FullAccess": {"full access", "full permissions", "complete access"},
			"SendAs":     {"send as", "send-as", "send on behalf"},
			"Reviewer":   {"read only", "read-only", "view only"},
			"grant":      {"give", "allow", "provide", "add access"},
			"offboard":   {"deprovision", "terminate", "offboarding", "leaving"},
			"provision":  {"onboard", "new hire", "set up account", "create account"},
		},
		Corrections: map[string]string{
			`\bpirece\b`:     "pierce",
			`\bmailbix\b`:    "mailbox",
			`\bpermisson\b`:  "permission",
			`\bpermissons\b`: "permissions",
			`\baccont\b`:     "account",
		},
	}
}

// Config configures the parser.
type Config struct {
	// Dictionaries override the defaults when non-zero.
	Dictionaries *Dictionaries

	// DefaultDomain is appended to bare user identifiers during
	// normalization elsewhere in the pipeline; the parser uses it to
	// recognize in-domain addresses with higher confidence.
	DefaultDomain string
}

// compiledCorrection is a pre-compiled typo correction.
type compiledCorrection struct {
	regex       *regexp.Regexp
	replacement string
}

// Parser implements the parser capability.
type Parser struct {
	dict          Dictionaries
	corrections   []compiledCorrection
	defaultDomain string
	logger        *zap.Logger
}

// NewParser creates a parser. Invalid correction patterns are skipped.
func NewParser(cfg Config, logger *zap.Logger) (*Parser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dict := DefaultDictionaries()
	if cfg.Dictionaries != nil {
		dict = *cfg.Dictionaries
	}

	var corrections []compiledCorrection
	for pattern, replacement := range dict.Corrections {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			logger.Warn("skipping invalid correction pattern",
				zap.String("pattern", pattern),
				zap.Error(err),
			)
			continue
		}
		corrections = append(corrections, compiledCorrection{regex: re, replacement: replacement})
	}

	return &Parser{
		dict:          dict,
		corrections:   corrections,
		defaultDomain: cfg.DefaultDomain,
		logger:        logger,
	}, nil
}

var (
	emailRe   = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	mailboxRe = regexp.MustCompile(`\b[a-z0-9]+(?:_[a-z0-9]+)+\b`)
	groupRe   = regexp.MustCompile(`(?i)\b(?:group|distribution list|dl)\s+"?([A-Za-z0-9 _-]{2,40}?)"?(?:\s+(?:group|list)\b|[,.]|$)`)
	roomRe    = regexp.MustCompile(`(?i)\b(?:room|conference room|equipment)\s+([A-Za-z0-9_-]{2,40})`)
)

// actionTerms maps a recognized action phrase to its canonical verb, in
// match-priority order.
var actionTerms = []struct {
	phrase string
	verb   string
}{
	{"offboard", "offboard"},
	{"deprovision", "offboard"},
	{"terminate", "offboard"},
	{"provision", "provision"},
	{"onboard", "provision"},
	{"new hire", "provision"},
	{"create account", "provision"},
	{"litigation hold", "litigation hold"},
	{"retention", "retention"},
	{"remove from group", "remove from group"},
	{"add to group", "add to group"},
	{"membership", "group membership"},
	{"grant", "grant access"},
	{"give access", "grant access"},
	{"permission", "grant access"},
	{"delegate", "grant access"},
	{"report", "report"},
	{"usage", "report"},
	{"maintenance", "maintenance"},
	{"health check", "maintenance"},
	{"room", "resource"},
	{"calendar", "resource"},
}

// accessTerms maps normalized access phrases to canonical levels, in
// match-priority order so extraction stays deterministic.
var accessTerms = []struct {
	phrase string
	level  string
}{
	{"fullaccess", "FullAccess"},
	{"sendas", "SendAs"},
	{"reviewer", "Reviewer"},
	{"readonly", "Reviewer"},
}

// ExtractEntities runs the primary extractor: typo correction, synonym
// normalization, then pattern extraction with specificity-weighted
// confidence.
func (p *Parser) ExtractEntities(ctx context.Context, text string) (entity.Collection, error) {
	normalized := p.normalize(text)
	c := p.extract(normalized, "dictionary", primaryConfidence)

	p.logger.Debug("entities extracted",
		zap.Int("count", c.Len()),
		zap.Float64("mean_confidence", c.MeanConfidence()),
	)
	return c, nil
}

// FallbackParse runs the deterministic regex-only extractor. Lower
// precision, never fails.
func (p *Parser) FallbackParse(ctx context.Context, text string) entity.Collection {
	return p.extract(strings.ToLower(text), "fallback", fallbackConfidence)
}

// confidence tables per extractor tier.
var primaryConfidence = map[entity.Type]float64{
	entity.TypeUser:         0.92,
	entity.TypeMailbox:      0.85,
	entity.TypeAccessRights: 0.88,
	entity.TypeAction:       0.8,
	entity.TypeGroup:        0.75,
	entity.TypeResource:     0.75,
}

var fallbackConfidence = map[entity.Type]float64{
	entity.TypeUser:         0.6,
	entity.TypeMailbox:      0.55,
	entity.TypeAccessRights: 0.6,
	entity.TypeAction:       0.5,
	entity.TypeGroup:        0.45,
	entity.TypeResource:     0.45,
}

// normalize applies typo corrections and synonym canonicalization.
func (p *Parser) normalize(text string) string {
	out := strings.ToLower(text)
	for _, c := range p.corrections {
		out = c.regex.ReplaceAllString(out, c.replacement)
	}
	for canonical, synonyms := range p.dict.Synonyms {
		for _, syn := range synonyms {
			out = strings.ReplaceAll(out, syn, strings.ToLower(canonical))
		}
	}
	return out
}

func (p *Parser) extract(text, source string, scores map[entity.Type]float64) entity.Collection {
	c := entity.Collection{}
	add := func(t entity.Type, value, raw string) {
		c.Add(entity.Entity{
			Type:       t,
			Value:      value,
			Raw:        raw,
			Confidence: scores[t],
			Source:     source,
		})
	}

	for _, m := range emailRe.FindAllString(text, -1) {
		add(entity.TypeUser, m, m)
	}

	for _, m := range mailboxRe.FindAllString(text, -1) {
		add(entity.TypeMailbox, m, m)
	}

	squashed := strings.ReplaceAll(text, " ", "")
	for _, at := range accessTerms {
		if strings.Contains(squashed, at.phrase) {
			add(entity.TypeAccessRights, at.level, at.phrase)
			break
		}
	}

	for _, at := range actionTerms {
		if strings.Contains(text, at.phrase) {
			add(entity.TypeAction, at.verb, at.phrase)
			break
		}
	}

	if m := groupRe.FindStringSubmatch(text); len(m) > 1 {
		add(entity.TypeGroup, strings.TrimSpace(m[1]), m[0])
	}

	if m := roomRe.FindStringSubmatch(text); len(m) > 1 {
		add(entity.TypeResource, strings.TrimSpace(m[1]), m[0])
	}

	return c
}
