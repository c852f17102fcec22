package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameDiacritics(t *testing.T) {
	assert.Equal(t, "felix bautista", Name("Félix Bautista"))
	assert.Equal(t, "felix bautista", Name("Felix Bautista"))
	assert.Equal(t, "jose ramirez", Name("José Ramírez"))
}

func TestNamePeriods(t *testing.T) {
	assert.Equal(t, "jt realmuto", Name("J.T. Realmuto"))
	assert.Equal(t, "aj puk", Name("A.J. Puk"))
}

func TestNamePunctuationAndWhitespace(t *testing.T) {
	assert.Equal(t, "logan ohoppe", Name("Logan O'Hoppe"))
	assert.Equal(t, "mike trout", Name("  Mike   Trout  "))
	assert.Equal(t, "luis garcia jr", Name("Luis García Jr."))
}

func TestNameEmpty(t *testing.T) {
	assert.Equal(t, "", Name(""))
	assert.Equal(t, "", Name("   "))
	assert.Equal(t, "", Name("123-456"))
}

func TestNameIdempotent(t *testing.T) {
	inputs := []string{"Félix Bautista", "J.T. Realmuto", "Shohei Ohtani", ""}
	for _, in := range inputs {
		once := Name(in)
		assert.Equal(t, once, Name(once), "Name should be idempotent for %q", in)
	}
}

func TestTeamAliases(t *testing.T) {
	assert.Equal(t, "ARI", Team("ARZ"))
	assert.Equal(t, "ARI", Team("AZ"))
	assert.Equal(t, "ARI", Team("ari"))
	assert.Equal(t, "WSH", Team("WSN"))
	assert.Equal(t, "KC", Team("KCR"))
}

func TestTeamUnknownPassesThrough(t *testing.T) {
	assert.Equal(t, "NYY", Team("NYY"))
	assert.Equal(t, "XYZ", Team("xyz"))
	assert.Equal(t, "", Team(""))
}
