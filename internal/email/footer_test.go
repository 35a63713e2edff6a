package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddUnsubscribeFooter_InsertsBeforeBodyClose(t *testing.T) {
	html := "<html><body><p>Hello</p></body></html>"
	out := AddUnsubscribeFooter(html, "https://app.example.com/unsubscribe/tok")

	assert.Contains(t, out, "https://app.example.com/unsubscribe/tok")
	assert.True(t, strings.HasSuffix(out, "</body></html>"))
	assert.Less(t, strings.Index(out, "unsubscribe"), strings.Index(out, "</body>"))
}

func TestAddUnsubscribeFooter_AppendsWithoutBodyTag(t *testing.T) {
	html := "<p>Hello</p>"
	out := AddUnsubscribeFooter(html, "https://app.example.com/unsubscribe/tok")

	assert.True(t, strings.HasPrefix(out, html))
	assert.Contains(t, out, "click here to unsubscribe")
}
