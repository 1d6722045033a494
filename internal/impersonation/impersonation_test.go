package impersonation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/core"
)

var testNow = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newTestDetector(brands []core.BrandRecord) *Detector {
	return NewDetector(brands, DefaultNewDomainWindow, func() time.Time { return testNow }, zap.NewNop())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "paypal.com", Normalize("paypa1.com"))
	assert.Equal(t, "google.com", Normalize("G00GLE.com"))
	assert.Equal(t, "seti", Normalize("$€7!"))
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "bücher.de", Normalize("Bücher.de"))
	assert.Equal(t, "straße.de", Normalize("STRAßE.de"), "lower-casing never expands characters")
}

func TestVisualSimilarity(t *testing.T) {
	sim := VisualSimilarity("paypa1.com", Normalize("paypa1.com"))
	assert.GreaterOrEqual(t, sim, 0.6)
	assert.Equal(t, 1.0, sim)

	assert.Equal(t, 0.0, VisualSimilarity("", "abc"))
	assert.InDelta(t, 1.0/3, VisualSimilarity("ab", "bc"), 1e-12)
}

func TestEmbeddingSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, EmbeddingSimilarity("paypa1.com", "paypal.com"), 1e-9)
	assert.Equal(t, 0.0, EmbeddingSimilarity("foo.org", "paypal.com"))
	assert.Equal(t, 0.0, EmbeddingSimilarity("ab", "ab"), "shorter than one trigram")
	assert.InDelta(t, 0.36515, EmbeddingSimilarity("paypal-secure.net", "paypal.com"), 1e-4)
}

func TestExtractDomain(t *testing.T) {
	d := newTestDetector(nil)
	assert.Equal(t, "paypa1.com", d.ExtractDomain("HTTPS://PayPa1.com/login?x=1"))
	assert.Equal(t, "a.example:8080", d.ExtractDomain("  http://a.example:8080/x"))
	assert.Equal(t, "", d.ExtractDomain("ftp://files.example"))
	assert.Equal(t, "", d.ExtractDomain("see http://later.example"))
	assert.Equal(t, "", d.ExtractDomain(""))
}

func TestDetectEmptyDomainIsNoop(t *testing.T) {
	d := newTestDetector([]core.BrandRecord{{Name: "PayPal", Domains: []string{"paypal.com"}}})
	brand, homoglyph := d.Detect("", "PayPal PayPal", nil)
	assert.Nil(t, brand)
	assert.Nil(t, homoglyph)
}

func TestDetectHomoglyphDomain(t *testing.T) {
	d := newTestDetector([]core.BrandRecord{{Name: "PayPal", Domains: []string{"paypal.com"}}})

	brand, homoglyph := d.Detect("paypa1.com", "please log in", nil)

	require.NotNil(t, homoglyph)
	assert.Equal(t, "paypal.com", homoglyph.Normalized)
	assert.Equal(t, 100, homoglyph.Severity)

	require.NotNil(t, brand)
	assert.Equal(t, "PayPal", brand.Brand)
	assert.Equal(t, "paypal.com", brand.OfficialDomain)
	assert.Equal(t, 1, brand.EditDistance)
	assert.Equal(t, 0, brand.Boost)
	assert.Equal(t, 100, brand.Severity)
}

func TestDetectBrandTieBreakKeepsFirst(t *testing.T) {
	d := newTestDetector([]core.BrandRecord{
		{Name: "Alpha", Domains: []string{"example.com"}},
		{Name: "Beta", Domains: []string{"example.com"}},
	})

	brand, _ := d.Detect("examp1e.com", "", nil)

	require.NotNil(t, brand)
	assert.Equal(t, "Alpha", brand.Brand)
}

func TestDetectBrandNamedInText(t *testing.T) {
	d := newTestDetector([]core.BrandRecord{{Name: "PayPal", Domains: []string{"paypal.com"}}})

	brand, _ := d.Detect("paypal-secure.net", "Your PAYPAL account is limited", nil)
	require.NotNil(t, brand)
	assert.Equal(t, 37, brand.Severity)

	unnamed := newTestDetector([]core.BrandRecord{{Name: "Contoso", Domains: []string{"paypal.com"}}})
	brand, _ = unnamed.Detect("paypal-secure.net", "hello", nil)
	assert.Nil(t, brand, "low similarity needs the brand name")
}

func TestDetectBrandBoosts(t *testing.T) {
	d := newTestDetector([]core.BrandRecord{{Name: "PayPal", Domains: []string{"paypal.com"}}})
	intel := &core.Intel{
		Whois: core.WhoisRecord{OK: true, CreationDate: "2025-06-01T00:00:00Z"},
		SSL:   core.SSLRecord{OK: true, SANs: []string{"other.example"}},
		CT:    core.CTLogSet{OK: true},
	}

	brand, _ := d.Detect("paypal-secure.net", "PayPal", intel)
	require.NotNil(t, brand)
	assert.Equal(t, 25, brand.Boost)
	assert.Equal(t, 62, brand.Severity)

	intel.SSL.SANs = []string{"PAYPAL-SECURE.NET"}
	intel.CT = core.CTLogSet{OK: false}
	brand, _ = d.Detect("paypal-secure.net", "PayPal", intel)
	require.NotNil(t, brand)
	assert.Equal(t, 10, brand.Boost, "matching SAN and unavailable CT add nothing")
}

func TestNewlyRegistered(t *testing.T) {
	d := newTestDetector(nil)
	assert.True(t, d.newlyRegistered("2025-06-01"))
	assert.True(t, d.newlyRegistered("2023-06-01T10:00:00Z"))
	assert.False(t, d.newlyRegistered("2015-01-01"))
	assert.False(t, d.newlyRegistered("2027-01-01"), "future dates are not trusted")
	assert.True(t, d.newlyRegistered("registered sometime in 2024"))
	assert.False(t, d.newlyRegistered("1999 era"))
	assert.False(t, d.newlyRegistered(""))
}

func TestNewlyRegisteredYearFallbackCoversWindow(t *testing.T) {
	now := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	d := NewDetector(nil, DefaultNewDomainWindow, func() time.Time { return now }, zap.NewNop())

	for _, year := range []string{"2023", "2024", "2025"} {
		assert.True(t, d.newlyRegistered("created in "+year), year)
	}
	assert.False(t, d.newlyRegistered("created in 2022"))
	assert.False(t, d.newlyRegistered("created in 2026"))
}

func TestParseBrands(t *testing.T) {
	brands, err := ParseBrands([]byte(`[
		{"name": "PayPal", "domains": ["PayPal.com", " paypal.me "]},
		{"name": "", "domains": ["nameless.example"]},
		{"name": "Alipay", "domains": []}
	]`))
	require.NoError(t, err)
	require.Len(t, brands, 2)
	assert.Equal(t, []string{"paypal.com", "paypal.me"}, brands[0].Domains)
	assert.Equal(t, "Alipay", brands[1].Name)

	_, err = ParseBrands([]byte(`{"name": "not a list"}`))
	assert.Error(t, err)
}

func TestLoadBrandsDegradesToEmpty(t *testing.T) {
	logger := zap.NewNop()
	assert.Empty(t, LoadBrands("", logger))
	assert.Empty(t, LoadBrands(filepath.Join(t.TempDir(), "missing.json"), logger))

	bad := filepath.Join(t.TempDir(), "brands.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	assert.Empty(t, LoadBrands(bad, logger))

	good := filepath.Join(t.TempDir(), "brands.json")
	require.NoError(t, os.WriteFile(good, []byte(`[{"name":"Apple","domains":["apple.com"]}]`), 0o600))
	assert.Len(t, LoadBrands(good, logger), 1)
}
