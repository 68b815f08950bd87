package privacy

import (
	"strings"

	"whatsdata/internal/constants"
)

// MaskPhoneNumber hides all but the last digits of a phone number
// Example: "+6281234567890" -> "+*********7890"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}
	if strings.HasPrefix(phone, "+") {
		return "+" + maskTail(phone[1:], constants.DefaultPhoneMaskLength)
	}
	return maskTail(phone, constants.DefaultPhoneMaskLength)
}

// MaskChatID masks the number part of a WhatsApp id and keeps its domain
// Example: "6281234567890@c.us" -> "*********7890@c.us"
func MaskChatID(chatID string) string {
	if chatID == "" {
		return ""
	}
	if at := strings.Index(chatID, "@"); at >= 0 {
		return maskTail(chatID[:at], constants.DefaultPhoneMaskLength) + chatID[at:]
	}
	return maskTail(chatID, constants.DefaultPhoneMaskLength)
}

// MaskFields returns a copy of fields with WhatsApp identifiers masked
func MaskFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			masked[k] = v
			continue
		}
		switch k {
		case "phone", "phone_number":
			masked[k] = MaskPhoneNumber(s)
		case "from", "to", "from_user", "to_user", "contact_id", "chat_id", "id":
			masked[k] = MaskChatID(s)
		default:
			masked[k] = v
		}
	}
	return masked
}

func maskTail(s string, keepLast int) string {
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}
