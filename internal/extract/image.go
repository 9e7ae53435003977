package extract

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".avif": true, ".bmp": true,
}

// imageHosts serve images without a telltale extension.
var imageHosts = []string{
	"images.unsplash.com",
	"s1.ticketm.net",
	"img.evbuc.com",
	"cdn.evbuc.com",
	"lh3.googleusercontent.com",
	"encrypted-tbn0.gstatic.com",
	"i.imgur.com",
	"res.cloudinary.com",
	"images.ctfassets.net",
	"media.licdn.com",
	"pbs.twimg.com",
	"scontent.xx.fbcdn.net",
}

var imagePathHints = []string{"/image", "/images/", "/img/", "/photo", "/media/", "/thumb"}

var imageQueryHints = []string{"format=jpg", "format=jpeg", "format=png", "format=webp", "fm=jpg", "fm=png", "fm=webp", "auto=format"}

var placeholderHints = []string{"placeholder", "no-image", "noimage", "default-image", "blank.gif", "spacer.gif"}

// IsImageURL reports whether u looks like an absolute http(s) URL of an
// actual image: a known image extension, a known image host, or an
// image-shaped path or query. Placeholders are rejected.
func IsImageURL(u string) bool {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	lower := strings.ToLower(u)
	for _, h := range placeholderHints {
		if strings.Contains(lower, h) {
			return false
		}
	}

	if imageExtensions[strings.ToLower(path.Ext(parsed.Path))] {
		return true
	}
	host := strings.ToLower(parsed.Hostname())
	for _, h := range imageHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	p := strings.ToLower(parsed.Path)
	for _, h := range imagePathHints {
		if strings.Contains(p, h) {
			return true
		}
	}
	q := strings.ToLower(parsed.RawQuery)
	for _, h := range imageQueryHints {
		if strings.Contains(q, h) {
			return true
		}
	}
	return false
}

var htmlImgSrc = regexp.MustCompile(`(?i)<img[^>]+src\s*=\s*["']([^"']+)["']`)

// ImageFromHTML returns the first <img> source in an HTML fragment that
// passes IsImageURL, or "".
func ImageFromHTML(html string) string {
	for _, m := range htmlImgSrc.FindAllStringSubmatch(html, 5) {
		if IsImageURL(m[1]) {
			return m[1]
		}
	}
	return ""
}

// Image returns the first candidate that passes IsImageURL, or the default
// image for category.
func Image[T any](raw T, category string, accessors ...Accessor[T]) string {
	if img := First(raw, IsImageURL, accessors...); img != "" {
		return img
	}
	return DefaultImage(category)
}

// IsRealImage reports whether img is a usable, provider-supplied picture:
// http-prefixed, longer than 20 characters, not a placeholder and not one
// of our category fallbacks.
func IsRealImage(img string) bool {
	img = strings.TrimSpace(img)
	if len(img) <= 20 || !strings.HasPrefix(img, "http") {
		return false
	}
	lower := strings.ToLower(img)
	for _, h := range placeholderHints {
		if strings.Contains(lower, h) {
			return false
		}
	}
	return !IsFallbackImage(img)
}
