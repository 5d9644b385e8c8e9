package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/admind/internal/entity"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser(Config{DefaultDomain: "corp.example.com"}, nil)
	require.NoError(t, err)
	return p
}

func TestExtractEntitiesEmail(t *testing.T) {
	p := newTestParser(t)

	c, err := p.ExtractEntities(context.Background(), "Grant jane.doe@corp.example.com full access to shared_finance")
	require.NoError(t, err)

	user, ok := c.First(entity.TypeUser)
	require.True(t, ok)
	assert.Equal(t, "jane.doe@corp.example.com", user.Value)
	assert.InDelta(t, 0.92, user.Confidence, 1e-9)
	assert.Equal(t, "dictionary", user.Source)

	mailbox, ok := c.First(entity.TypeMailbox)
	require.True(t, ok)
	assert.Equal(t, "shared_finance", mailbox.Value)

	access, ok := c.First(entity.TypeAccessRights)
	require.True(t, ok)
	assert.Equal(t, "FullAccess", access.Value)
}

func TestExtractEntitiesTypoCorrection(t *testing.T) {
	p := newTestParser(t)

	c, err := p.ExtractEntities(context.Background(), "Give Pirece access to the mailbix hr_inbox")
	require.NoError(t, err)

	// pirece -> pierce and mailbix -> mailbox both correct before extraction.
	mailbox, ok := c.First(entity.TypeMailbox)
	require.True(t, ok)
	assert.Equal(t, "hr_inbox", mailbox.Value)

	action, ok := c.First(entity.TypeAction)
	require.True(t, ok)
	assert.Equal(t, "grant access", action.Value)
}

func TestExtractEntitiesSynonymNormalization(t *testing.T) {
	p := newTestParser(t)

	for _, phrase := range []string{"full access", "full permissions", "complete access"} {
		c, err := p.ExtractEntities(context.Background(), "set up "+phrase+" for ops_queue")
		require.NoError(t, err)

		access, ok := c.First(entity.TypeAccessRights)
		require.True(t, ok, "phrase %q", phrase)
		assert.Equal(t, "FullAccess", access.Value)
	}
}

func TestExtractEntitiesActionClassification(t *testing.T) {
	p := newTestParser(t)

	cases := map[string]string{
		"Please offboard the contractor account":     "offboard",
		"Deprovision john.smith@corp.example.com":    "offboard",
		"Onboard the new hire starting Monday":       "provision",
		"Apply a litigation hold to legal_archive":   "litigation hold",
		"Generate a usage report for last quarter":   "report",
		"Run the scheduled maintenance health check": "maintenance",
	}
	for text, want := range cases {
		c, err := p.ExtractEntities(context.Background(), text)
		require.NoError(t, err)

		action, ok := c.First(entity.TypeAction)
		require.True(t, ok, "text %q", text)
		assert.Equal(t, want, action.Value, "text %q", text)
	}
}

func TestFallbackParseLowerConfidence(t *testing.T) {
	p := newTestParser(t)

	text := "grant jane.doe@corp.example.com full access to shared_finance"

	primary, err := p.ExtractEntities(context.Background(), text)
	require.NoError(t, err)
	fallback := p.FallbackParse(context.Background(), text)

	pu, ok := primary.First(entity.TypeUser)
	require.True(t, ok)
	fu, ok := fallback.First(entity.TypeUser)
	require.True(t, ok)

	assert.Equal(t, pu.Value, fu.Value)
	assert.Less(t, fu.Confidence, pu.Confidence)
	assert.Equal(t, "fallback", fu.Source)
}

func TestFallbackParseSkipsDictionaries(t *testing.T) {
	p := newTestParser(t)

	// The typo is not corrected in the fallback path, so no mailbox term
	// appears; the raw snake_case token is still found by regex.
	c := p.FallbackParse(context.Background(), "mailbix access for audit_log please")

	mailbox, ok := c.First(entity.TypeMailbox)
	require.True(t, ok)
	assert.Equal(t, "audit_log", mailbox.Value)
}

func TestNewParserSkipsInvalidCorrection(t *testing.T) {
	dict := DefaultDictionaries()
	dict.Corrections[`[unclosed`] = "x"

	p, err := NewParser(Config{Dictionaries: &dict}, nil)
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestGroupAndResourceExtraction(t *testing.T) {
	p := newTestParser(t)

	c, err := p.ExtractEntities(context.Background(), "Add them to group Finance Team, and reserve room boardroom-2")
	require.NoError(t, err)

	group, ok := c.First(entity.TypeGroup)
	require.True(t, ok)
	assert.Equal(t, "finance team", group.Value)

	room, ok := c.First(entity.TypeResource)
	require.True(t, ok)
	assert.Equal(t, "boardroom-2", room.Value)
}
