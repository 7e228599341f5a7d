// Package safety scores URLs for abuse risk. Assess is a pure function over
// the raw URL string: no I/O, no clock, so results are fully deterministic
// and safe to snapshot onto a link at creation time.
package safety

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// Feature is one triggered heuristic with its weight contribution.
type Feature struct {
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Warning  string `json:"warning"`
	Category string `json:"category,omitempty"`
}

// Assessment is the outcome of scoring a single URL.
type Assessment struct {
	Safe     bool      `json:"safe"`
	Reason   string    `json:"reason,omitempty"`
	Score    int       `json:"score"`
	Warnings []string  `json:"warnings"`
	Category string    `json:"category,omitempty"`
	Features []Feature `json:"features,omitempty"`
}

var highRiskTLDs = map[string]bool{
	"xyz": true, "top": true, "club": true, "gq": true, "tk": true,
	"ml": true, "ga": true, "cf": true, "pw": true, "cc": true, "loan": true,
}

var shortenerDomains = map[string]bool{
	"bit.ly": true, "tinyurl.com": true, "goo.gl": true, "t.co": true,
	"is.gd": true, "rebrand.ly": true, "ow.ly": true,
}

var fileHostDomains = map[string]bool{
	"drive.google.com": true, "dropbox.com": true, "wetransfer.com": true,
	"mediafire.com": true, "mega.nz": true, "anonfiles.com": true,
}

// blockedPatterns is the phishing/malware/credential-harvest vocabulary.
// Hyphens count as word joiners since URL slugs hyphenate ("verify-account",
// "secure-login").
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bphish\w*`),
	regexp.MustCompile(`(?i)\bmalware\b`),
	regexp.MustCompile(`(?i)\bhack(ing|ed|er)?\b`),
	regexp.MustCompile(`(?i)\bcred[\w-]*steal\w*`),
	regexp.MustCompile(`(?i)\bbank[\w-]*login\b`),
	regexp.MustCompile(`(?i)\.(exe|dll|bat|sh|msi|apk)([?#]|$)`),
	regexp.MustCompile(`(?i)\bpassword[\w-]*(reset|change|update)\b`),
	regexp.MustCompile(`(?i)\bverify[\w-]*(account|identity|payment)\b`),
	regexp.MustCompile(`(?i)\bsecure[\w-]*(login|sign[-\s]?in)\b`),
	regexp.MustCompile(`(?i)\bconfirm[\w-]*(payment|transaction)\b`),
	regexp.MustCompile(`(?i)\bupdate[\w-]*(billing|payment)\b`),
	regexp.MustCompile(`(?i)\bwallet[\w-]*(connect|verify|validate)\b`),
	regexp.MustCompile(`(?i)\bcrypto[\w-]*(offer|bonus|gift)\b`),
	regexp.MustCompile(`(?i)\b(btc|eth|usdt|bnb)\b[\w-]*(gift|giveaway)\b`),
}

// brands most commonly impersonated in phishing hosts, checked in order with
// first match winning.
var brands = []string{
	"google", "apple", "microsoft", "amazon", "facebook", "instagram",
	"twitter", "netflix", "paypal", "chase", "wellsfargo", "citi",
	"amex", "visa", "mastercard", "coinbase", "binance",
}

var brandWordRx = func() []*regexp.Regexp {
	rx := make([]*regexp.Regexp, len(brands))
	for i, b := range brands {
		rx[i] = regexp.MustCompile(`(?i)\b` + b + `\b`)
	}
	return rx
}()

var suspiciousParams = []string{
	"redirect", "return", "returnurl", "returnto", "url", "next",
	"target", "token", "auth", "access", "account", "session", "verify",
}

var (
	schemeRx          = regexp.MustCompile(`(?i)^https?://`)
	dangerousSchemeRx = regexp.MustCompile(`(\b|%3a)(javascript|data)(:|%3a)`)
	symbolRx          = regexp.MustCompile(`[A-Za-z0-9/_-]`)
	base64CharsetRx   = regexp.MustCompile(`[A-Za-z0-9+/=_-]`)
)

var sensitivePorts = map[int]bool{21: true, 22: true, 23: true, 25: true, 445: true, 3389: true}

// Assess scores a raw URL. It never fails: unparsable input yields the
// maximal score with category "Error". Warnings preserve the order features
// were evaluated in, not score order.
func Assess(raw string) Assessment {
	input := strings.TrimSpace(raw)
	if !schemeRx.MatchString(input) {
		input = "https://" + input
	}

	u, err := url.Parse(input)
	if err != nil || u.Hostname() == "" {
		return Assessment{
			Safe:     false,
			Reason:   "Invalid URL or error during safety check",
			Score:    100,
			Warnings: []string{"Could not analyze the URL"},
			Category: "Error",
		}
	}

	hostname := strings.ToLower(u.Hostname())
	asciiHost, err := idna.ToASCII(hostname)
	if err != nil {
		asciiHost = hostname
	}

	suffix, _ := publicsuffix.PublicSuffix(asciiHost)
	registrable, err := publicsuffix.EffectiveTLDPlusOne(asciiHost)
	if err != nil {
		registrable = asciiHost
		suffix = ""
	}
	subdomain := ""
	if asciiHost != registrable && strings.HasSuffix(asciiHost, "."+registrable) {
		subdomain = strings.TrimSuffix(asciiHost, "."+registrable)
	}
	fullHost := registrable
	if subdomain != "" {
		fullHost = subdomain + "." + registrable
	}

	decodedPath := safeDecode(strings.ToLower(u.EscapedPath()))
	search := ""
	if u.RawQuery != "" {
		search = "?" + u.RawQuery
	}
	decodedQuery := safeDecode(strings.ToLower(search))

	var features []Feature

	if suffix != "" && highRiskTLDs[suffix] {
		features = append(features, Feature{
			Name: "high_risk_tld", Score: 12,
			Warning: "High-risk TLD: ." + suffix,
		})
	}

	if shortenerDomains[registrable] {
		features = append(features, Feature{
			Name: "shortener_domain", Score: 14,
			Warning: "Known URL shortener (nested shortening)",
		})
	}
	if fileHostDomains[registrable] || fileHostDomains[asciiHost] {
		features = append(features, Feature{
			Name: "file_host", Score: 10,
			Warning: "File sharing host (be cautious with downloads)",
		})
	}

	for _, rx := range blockedPatterns {
		if rx.MatchString(asciiHost) || rx.MatchString(decodedPath) || rx.MatchString(decodedQuery) {
			features = append(features, Feature{
				Name: "pattern:" + rx.String(), Score: 28,
				Warning:  "Matches suspicious pattern: " + rx.String(),
				Category: "Potential phishing or malware",
			})
		}
	}

	if subdomain != "" {
		labels := 0
		for _, l := range strings.Split(subdomain, ".") {
			if l != "" {
				labels++
			}
		}
		if labels > 3 {
			features = append(features, Feature{
				Name: "excessive_subdomains", Score: 5 * (labels - 3),
				Warning: fmt.Sprintf("Unusual number of subdomains (%d)", labels),
			})
		}
	}

	registrableLabel := strings.SplitN(registrable, ".", 2)[0]
	for i, brand := range brands {
		inHost := strings.Contains(fullHost, brand) && registrableLabel != brand
		inSubdomain := subdomain != "" && brandWordRx[i].MatchString(subdomain)
		if inHost && inSubdomain {
			features = append(features, Feature{
				Name: "brand_impersonation:" + brand, Score: 24,
				Warning:  "Possible brand impersonation: " + brand,
				Category: "Potential brand impersonation",
			})
			break
		}
	}

	suspiciousParamCount := 0
	for _, kv := range queryPairs(u.RawQuery) {
		key := strings.ToLower(kv[0])
		for _, p := range suspiciousParams {
			if key == p || strings.Contains(key, p) {
				suspiciousParamCount++
				break
			}
		}
		if containsFullURL(kv[1]) {
			suspiciousParamCount++
		}
		if looksBase64(kv[1]) {
			features = append(features, Feature{
				Name: "base64_param", Score: 4,
				Warning: fmt.Sprintf("Parameter %s looks like encoded data", kv[0]),
			})
		}
	}
	if suspiciousParamCount > 0 {
		score := 5 * suspiciousParamCount
		if score > 20 {
			score = 20
		}
		features = append(features, Feature{
			Name: "suspicious_params", Score: score,
			Warning: fmt.Sprintf("Contains %d suspicious query indicators", suspiciousParamCount),
		})
	}

	totalLen := len(input)
	if totalLen > 200 {
		extra := (totalLen-200)/50*2 + 10
		if extra > 20 {
			extra = 20
		}
		features = append(features, Feature{
			Name: "long_url", Score: extra,
			Warning: "URL is unusually long",
		})
	}

	pathQuery := u.EscapedPath() + search
	if len(pathQuery) > 0 && totalLen > 80 {
		symbols := len(pathQuery) - len(symbolRx.FindAllString(pathQuery, -1))
		if float64(symbols)/float64(len(pathQuery)) > 0.2 {
			features = append(features, Feature{
				Name: "high_symbol_ratio", Score: 6,
				Warning: "Path/query contains many symbols",
			})
		}
	}

	if net.ParseIP(hostname) != nil {
		features = append(features, Feature{
			Name: "ip_host", Score: 18,
			Warning: "Uses IP address instead of domain",
		})
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err == nil && port != 80 && port != 443 && port != 8080 && port != 8443 {
			score := 10
			if sensitivePorts[port] {
				score = 16
			}
			features = append(features, Feature{
				Name: "unusual_port", Score: score,
				Warning: fmt.Sprintf("Unusual port %d", port),
			})
		}
	}

	if dangerousSchemeRx.MatchString(decodedPath + decodedQuery) {
		features = append(features, Feature{
			Name: "dangerous_scheme", Score: 40,
			Warning:  "Contains javascript: or data: scheme",
			Category: "Potential XSS attack",
		})
	}

	if strings.Contains(asciiHost, "xn--") {
		unicode, err := idna.ToUnicode(asciiHost)
		if err != nil {
			unicode = asciiHost
		}
		features = append(features, Feature{
			Name: "idn_punycode", Score: 18,
			Warning:  "Internationalized domain (IDN): " + unicode,
			Category: "Potential homograph risk",
		})
	}

	score := 0
	category := ""
	warnings := make([]string, 0, len(features))
	for _, f := range features {
		score += f.Score
		if category == "" && f.Category != "" {
			category = f.Category
		}
		warnings = append(warnings, f.Warning)
	}
	if score > 100 {
		score = 100
	}

	out := Assessment{
		Safe:     true,
		Score:    score,
		Warnings: warnings,
		Category: category,
		Features: features,
	}
	switch {
	case score >= 70:
		out.Safe = false
		out.Reason = "URL appears potentially malicious"
		if out.Category == "" {
			out.Category = "High-risk URL"
		}
	case score >= 40:
		out.Reason = "URL looks suspicious but not definitive"
		if out.Category == "" {
			out.Category = "Suspicious URL"
		}
	case score > 0:
		out.Category = "Low-risk URL"
	default:
		out.Category = "Safe URL"
	}
	return out
}

// queryPairs splits a raw query into ordered key/value pairs. url.Values
// loses insertion order, which the warning list depends on.
func queryPairs(rawQuery string) [][2]string {
	if rawQuery == "" {
		return nil
	}
	var pairs [][2]string
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		pairs = append(pairs, [2]string{safeDecode(k), safeDecode(v)})
	}
	return pairs
}

func safeDecode(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

func containsFullURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// looksBase64 reports whether a parameter value resembles base64-encoded
// payload: at least 16 chars with over 90% of them from the base64 charset.
func looksBase64(s string) bool {
	if len(s) < 16 {
		return false
	}
	matched := len(base64CharsetRx.FindAllString(s, -1))
	return float64(matched)/float64(len(s)) > 0.9
}
