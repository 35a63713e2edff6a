package email

import (
	"fmt"
	"strings"
)

const footerTemplate = `
<div style="margin-top: 20px; padding-top: 20px; border-top: 1px solid #e5e5e5; color: #666; font-size: 12px;">
  <p>If you no longer wish to receive these emails, <a href="%s" style="color: #666;">click here to unsubscribe</a>.</p>
</div>
`

// UnsubscribeFooter renders the compliance footer for an unsubscribe URL.
func UnsubscribeFooter(unsubscribeURL string) string {
	return fmt.Sprintf(footerTemplate, unsubscribeURL)
}

// AddUnsubscribeFooter appends the footer to HTML content, inserting before
// the closing body tag when one is present.
func AddUnsubscribeFooter(html, unsubscribeURL string) string {
	footer := UnsubscribeFooter(unsubscribeURL)
	if strings.Contains(html, "</body>") {
		return strings.Replace(html, "</body>", footer+"</body>", 1)
	}
	return html + footer
}
