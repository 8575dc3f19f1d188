package tenant

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Acme", "acme"},
		{"spaces", "Acme Corp", "acme-corp"},
		{"punctuation", "Acme, Corp. & Sons!", "acme-corp-sons"},
		{"surrounding whitespace", "  Acme Corp  ", "acme-corp"},
		{"consecutive separators", "Acme --- Corp", "acme-corp"},
		{"leading and trailing symbols", "***Acme***", "acme"},
		{"unicode stripped", "Çafé Corp", "af-corp"},
		{"digits kept", "Shop 24/7", "shop-24-7"},
		{"empty", "", ""},
		{"only symbols", "!!!", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Slugify(tc.in))
		})
	}
}

func TestSlugifyCapsLength(t *testing.T) {
	long := strings.Repeat("a", 150)
	assert.Len(t, Slugify(long), 100)
}

func TestDatabaseNameForSlug(t *testing.T) {
	assert.Equal(t, "tenant_acme", DatabaseNameForSlug("acme"))
	assert.Equal(t, "tenant_acme_corp", DatabaseNameForSlug("acme-corp"))
}
