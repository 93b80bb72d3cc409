package relay

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// attachmentsPending is the placeholder appended to a relayed message while
// attachment persistence is still in flight.
const attachmentsPending = "\n\n*Attachments pending...*"

// Timestamp returns the display timestamp prefixed to relayed messages.
func Timestamp(t time.Time) string {
	return t.UTC().Format("15:04")
}

// FormatAttachment renders one saved attachment as a thread line:
// filename, size in KB with one decimal, and the resolved public URL.
func FormatAttachment(filename string, size int64, url string) string {
	kb := float64(size) / 1024
	return fmt.Sprintf("**Attachment:** %s (%.1fKB)\n%s", filename, kb, url)
}

// linkRe matches http(s) URLs for link-preview suppression.
var linkRe = regexp.MustCompile(`(^|\s)(https?://\S+)`)

// DisableLinkPreviews wraps every URL in <> so the platform does not expand
// previews, used for edit diffs where both versions may contain links.
func DisableLinkPreviews(s string) string {
	return linkRe.ReplaceAllString(s, "$1<$2>")
}

// InfoHeader renders the first message of a new thread: account age, user
// id, main-guild nickname, and prior saved log count.
func InfoHeader(accountAge time.Duration, userID, nickname string, logCount int64) string {
	return fmt.Sprintf("ACCOUNT AGE **%s**, ID **%s**, NICKNAME **%s**, LOGS **%d**\n-------------------------------",
		HumanizeDuration(accountAge), userID, nickname, logCount)
}

// durationUnits are the units HumanizeDuration reports, largest first.
var durationUnits = []struct {
	name string
	d    time.Duration
}{
	{"year", 365 * 24 * time.Hour},
	{"month", 30 * 24 * time.Hour},
	{"day", 24 * time.Hour},
	{"hour", time.Hour},
	{"minute", time.Minute},
}

// HumanizeDuration renders a duration as its two largest units, e.g.
// "2 years, 3 months" or "5 hours, 12 minutes".
func HumanizeDuration(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}

	var parts []string
	for _, u := range durationUnits {
		if len(parts) == 2 {
			break
		}
		n := int(d / u.d)
		if n == 0 {
			continue
		}
		d -= time.Duration(n) * u.d
		name := u.name
		if n != 1 {
			name += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, name))
	}
	return strings.Join(parts, ", ")
}

// FormatTranscript renders channel history as the archived log body, one
// line per message, oldest first.
func FormatTranscript(msgs []TranscriptMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n",
			m.Timestamp.UTC().Format("2006-01-02 15:04:05"), m.AuthorTag, m.Content))
	}
	return b.String()
}

// Chunk splits lines into groups of at most size, for multi-message output.
func Chunk(lines []string, size int) [][]string {
	if size <= 0 {
		return [][]string{lines}
	}
	var chunks [][]string
	for len(lines) > size {
		chunks = append(chunks, lines[:size])
		lines = lines[size:]
	}
	if len(lines) > 0 {
		chunks = append(chunks, lines)
	}
	return chunks
}

// mentionRe matches a user mention (<@ID> or <@!ID>) or a bare snowflake.
var mentionRe = regexp.MustCompile(`^(?:<@!?(\d+)>|(\d{15,}))$`)

// ParseUserMention extracts a user ID from a mention or raw ID string.
// Returns "" if the input is neither.
func ParseUserMention(s string) string {
	m := mentionRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// channelNameRe strips characters Discord disallows in channel names.
var channelNameRe = regexp.MustCompile(`[^a-z0-9-]`)

// ChannelName derives a thread channel name from a user.
func ChannelName(u User) string {
	name := channelNameRe.ReplaceAllString(strings.ToLower(u.Username), "")
	if name == "" {
		name = "user"
	}
	if u.Discriminator != "" {
		return name + "-" + u.Discriminator
	}
	return name
}
