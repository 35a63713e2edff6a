package workflow

import (
	"fmt"
	"strings"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
)

const subjectMarker = "Subject:"

var toneInstructions = map[model.CampaignTone]string{
	model.ToneProfessional: "Write in a professional, business-like tone.",
	model.ToneFriendly:     "Write in a friendly, conversational tone.",
	model.ToneCasual:       "Write in a casual, relaxed tone.",
}

// BuildPrompt assembles the generation prompt from the campaign brief and
// the recipient context. Manual entries without directory context fall back
// to generic placeholders.
func BuildPrompt(campaign *model.Campaign, recipient model.Recipient) string {
	name := recipient.Name
	if name == "" {
		name = "the business owner"
	}
	industry := recipient.Industry
	if industry == "" {
		industry = "local services"
	}
	description := recipient.Description
	if description == "" {
		description = "Local service provider"
	}

	tone, ok := toneInstructions[campaign.Tone]
	if !ok {
		tone = toneInstructions[model.ToneProfessional]
	}

	var b strings.Builder
	b.WriteString("You are a marketing expert writing a cold email to promote services to Australian businesses.\n\n")
	b.WriteString("BUSINESS INFORMATION:\n")
	fmt.Fprintf(&b, "- Business Name: %s\n", name)
	fmt.Fprintf(&b, "- Industry: %s\n", industry)
	fmt.Fprintf(&b, "- Description: %s\n", description)
	if recipient.City != "" {
		fmt.Fprintf(&b, "- Location: %s\n", recipient.City)
	}
	b.WriteString("\nYOUR SERVICE:\n")
	fmt.Fprintf(&b, "- Description: %s\n", campaign.ServiceDescription)
	fmt.Fprintf(&b, "- Sender Name: %s\n", campaign.SenderName)
	fmt.Fprintf(&b, "\nTONE: %s\n\n", tone)
	b.WriteString(`TASK: Write a personalized cold email that:
1. Opens with a compelling subject line
2. Shows you understand their business and industry
3. Clearly explains how your service can help them
4. Includes a soft call-to-action
5. Keeps it concise (under 200 words)
6. Avoids spam trigger words

FORMAT YOUR RESPONSE AS:
Subject: [Your compelling subject line]

[Email body]`)

	return b.String()
}

// ParseGeneratedEmail splits a generator response into subject and body.
// The subject is taken from the first "Subject:" line; when the marker is
// absent the first non-empty line is used instead. An empty subject or body
// after parsing is a generation failure.
func ParseGeneratedEmail(content string) (subject, body string, err error) {
	lines := strings.Split(content, "\n")
	bodyStart := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, subjectMarker) {
			subject = strings.TrimSpace(strings.TrimPrefix(trimmed, subjectMarker))
		} else {
			subject = trimmed
		}
		bodyStart = i + 1
		break
	}

	body = strings.TrimSpace(strings.Join(lines[bodyStart:], "\n"))

	if subject == "" || body == "" {
		return "", "", fmt.Errorf("failed to parse generated email")
	}
	return subject, body, nil
}
