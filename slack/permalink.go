package slack

import "strings"

// Permalink derives the archive deep link for a message. It returns ""
// when the workspace domain, channel, or timestamp is missing; callers
// treat "" as "omit the link", never as an error. The message id in the
// path is the timestamp with its separator stripped.
func Permalink(workspaceDomain, channelID, messageTS string) string {
	workspaceDomain = strings.TrimSpace(workspaceDomain)
	channelID = strings.TrimSpace(channelID)
	messageTS = strings.TrimSpace(messageTS)
	if workspaceDomain == "" || channelID == "" || messageTS == "" {
		return ""
	}
	dense := strings.ReplaceAll(messageTS, ".", "")
	return "https://" + workspaceDomain + ".slack.com/archives/" + channelID + "/p" + dense
}
