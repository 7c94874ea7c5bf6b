package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageTextStripsChrome(t *testing.T) {
	html := `<html><head><style>.x{}</style></head><body>
<nav>Home | Login</nav>
<h1>Apartment Kinkerstraat</h1>
<ul><li>€ 1.450 per month</li><li>65 m²</li></ul>
<script>tracker()</script>
<footer>Copyright</footer>
</body></html>`
	text := PageText("https://example.com/listing/1", html)

	assert.Contains(t, text, "Apartment Kinkerstraat")
	assert.Contains(t, text, "€ 1.450 per month\n65 m²")
	assert.NotContains(t, text, "tracker()")
	assert.NotContains(t, text, ".x{}")
}

func TestPageTextEmpty(t *testing.T) {
	assert.Equal(t, "", PageText("https://example.com", "  "))
}

func TestBlockTextSeparatesBlocks(t *testing.T) {
	html := `<div><span>1.450</span></div><div>65 m²</div><p>65 m²</p>`
	text := PageText("https://example.com", html)
	lines := strings.Split(text, "\n")
	assert.Equal(t, []string{"1.450", "65 m²"}, lines)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	// "é" is two bytes; cutting inside it backs off to the rune start.
	assert.Equal(t, "a", Truncate("aéb", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
