package safety

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func featureNames(a Assessment) []string {
	names := make([]string, 0, len(a.Features))
	for _, f := range a.Features {
		names = append(names, f.Name)
	}
	return names
}

func hasFeaturePrefix(a Assessment, prefix string) bool {
	for _, f := range a.Features {
		if strings.HasPrefix(f.Name, prefix) {
			return true
		}
	}
	return false
}

func TestAssessCleanURL(t *testing.T) {
	a := Assess("https://example.com")

	assert.True(t, a.Safe)
	assert.Equal(t, 0, a.Score)
	assert.Equal(t, "Safe URL", a.Category)
	assert.Empty(t, a.Warnings)
}

func TestAssessSchemePrefixedWhenMissing(t *testing.T) {
	a := Assess("example.com/page")

	assert.True(t, a.Safe)
	assert.Equal(t, 0, a.Score)
}

func TestAssessBrandImpersonation(t *testing.T) {
	a := Assess("https://accounts-google.secure-login.xyz/verify-account")

	assert.False(t, a.Safe)
	assert.GreaterOrEqual(t, a.Score, 70)
	assert.Equal(t, "URL appears potentially malicious", a.Reason)

	names := featureNames(a)
	assert.Contains(t, names, "high_risk_tld")
	assert.Contains(t, names, "brand_impersonation:google")
	assert.True(t, hasFeaturePrefix(a, "pattern:"), "expected a vocabulary pattern to trigger")
}

func TestAssessBrandInRegistrableLabelNotImpersonation(t *testing.T) {
	// google.com itself is the brand's own domain, not an impersonation.
	a := Assess("https://accounts.google.com/signin")

	assert.False(t, hasFeaturePrefix(a, "brand_impersonation:"))
}

func TestAssessMalformedInput(t *testing.T) {
	for _, raw := range []string{"http://[::1", ""} {
		a := Assess(raw)

		assert.False(t, a.Safe, "input %q", raw)
		assert.Equal(t, 100, a.Score, "input %q", raw)
		assert.Equal(t, "Error", a.Category, "input %q", raw)
	}
}

func TestAssessDangerousScheme(t *testing.T) {
	cases := []string{
		"https://example.com/?next=javascript:alert(1)",
		"https://example.com/?q=%6Aavascript%3Aalert(1)",
		"https://example.com/?d=data:text/html;base64,AAAA",
	}
	for _, raw := range cases {
		a := Assess(raw)

		require.GreaterOrEqual(t, a.Score, 40, "input %q", raw)
		assert.Equal(t, "Potential XSS attack", a.Category, "input %q", raw)
	}
}

func TestAssessHighRiskTLD(t *testing.T) {
	a := Assess("https://landing.xyz/promo")

	assert.True(t, a.Safe)
	assert.Equal(t, 12, a.Score)
	assert.Equal(t, "Low-risk URL", a.Category)
	assert.Contains(t, a.Warnings, "High-risk TLD: .xyz")
}

func TestAssessNestedShortener(t *testing.T) {
	a := Assess("https://bit.ly/3xYz")

	assert.Contains(t, featureNames(a), "shortener_domain")
	assert.Equal(t, 14, a.Score)
}

func TestAssessFileHost(t *testing.T) {
	a := Assess("https://drive.google.com/file/d/abc")

	assert.Contains(t, featureNames(a), "file_host")
}

func TestAssessIPHost(t *testing.T) {
	a := Assess("http://203.0.113.9/x")

	assert.Contains(t, featureNames(a), "ip_host")
	assert.Equal(t, 18, a.Score)

	a = Assess("http://[2001:db8::1]/x")
	assert.Contains(t, featureNames(a), "ip_host")
}

func TestAssessUnusualPort(t *testing.T) {
	a := Assess("https://example.com:2222/x")
	assert.Equal(t, 10, a.Score)

	a = Assess("https://example.com:3389/x")
	assert.Equal(t, 16, a.Score)

	a = Assess("https://example.com:8443/x")
	assert.NotContains(t, featureNames(a), "unusual_port")
}

func TestAssessExcessiveSubdomains(t *testing.T) {
	a := Assess("https://a.b.c.d.e.example.com/")

	assert.Contains(t, featureNames(a), "excessive_subdomains")
	assert.Equal(t, 10, a.Score) // 5 labels, 2 beyond the threshold
}

func TestAssessPunycodeHost(t *testing.T) {
	a := Assess("https://xn--80ak6aa92e.com/")

	assert.Contains(t, featureNames(a), "idn_punycode")
	assert.Equal(t, 18, a.Score)
	assert.Equal(t, "Low-risk URL", a.Category)
}

func TestAssessSuspiciousParams(t *testing.T) {
	// "token" and "redirect" match the key denylist; the redirect value is a
	// full URL. Three indicators at 5 points each.
	a := Assess("https://example.com/?token=abc&redirect=https%3A%2F%2Fevil.example")

	names := featureNames(a)
	assert.Contains(t, names, "suspicious_params")
	assert.Equal(t, 15, a.Score)
}

func TestAssessSuspiciousParamsCapped(t *testing.T) {
	a := Assess("https://example.com/?token=a&auth=b&session=c&verify=d&account=e")

	for _, f := range a.Features {
		if f.Name == "suspicious_params" {
			assert.Equal(t, 20, f.Score)
			return
		}
	}
	t.Fatal("suspicious_params feature not triggered")
}

func TestAssessBase64Param(t *testing.T) {
	a := Assess("https://example.com/?blob=dG9rZW5fdmFsdWU9MTIz")

	assert.Contains(t, featureNames(a), "base64_param")
}

func TestAssessLongURL(t *testing.T) {
	raw := "https://example.com/" + strings.Repeat("a/", 250)
	a := Assess(raw)

	for _, f := range a.Features {
		if f.Name == "long_url" {
			assert.Equal(t, 20, f.Score)
			return
		}
	}
	t.Fatal("long_url feature not triggered")
}

func TestAssessScoreClamped(t *testing.T) {
	a := Assess("https://accounts-google.secure-login.xyz/verify-account/phishing-malware-hack?next=javascript:alert(1)")

	assert.Equal(t, 100, a.Score)
	assert.False(t, a.Safe)
}

func TestAssessWarningsFollowEvaluationOrder(t *testing.T) {
	a := Assess("https://accounts-google.secure-login.xyz/verify-account")

	require.NotEmpty(t, a.Warnings)
	assert.Equal(t, "High-risk TLD: .xyz", a.Warnings[0])
	assert.Equal(t, len(a.Features), len(a.Warnings))
}

func TestAssessIsDeterministic(t *testing.T) {
	raw := "https://accounts-google.secure-login.xyz/verify-account?token=abc&redirect=https%3A%2F%2Fevil.example"
	first := Assess(raw)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Assess(raw))
	}
}
