package relay

import (
	"fmt"
	"strconv"
	"strings"
)

const tagPrefix = "#user_"

// FormatTag builds the correlation caption for a message copied into the
// relay chat: #user_<chat_id>_<message_id> of the ORIGINAL message.
func FormatTag(chatID, messageID int64) string {
	return fmt.Sprintf("%s%d_%d", tagPrefix, chatID, messageID)
}

// ParseTag extracts the original chat and message ids from a relay caption.
// The caption must start with the tag; trailing text is ignored.
func ParseTag(caption string) (chatID, messageID int64, ok bool) {
	caption = strings.TrimSpace(caption)
	if !strings.HasPrefix(caption, tagPrefix) {
		return 0, 0, false
	}
	rest := strings.TrimPrefix(caption, tagPrefix)
	if i := strings.IndexAny(rest, " \n\t"); i >= 0 {
		rest = rest[:i]
	}

	// chat id may itself be negative, so split on the LAST underscore
	idx := strings.LastIndex(rest, "_")
	if idx <= 0 || idx == len(rest)-1 {
		return 0, 0, false
	}
	chatID, err := strconv.ParseInt(rest[:idx], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	messageID, err = strconv.ParseInt(rest[idx+1:], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return chatID, messageID, true
}
