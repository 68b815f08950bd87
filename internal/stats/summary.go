package stats

import "whatsdata/internal/constants"

type SummaryDerived struct {
	AverageMessagesPerContact int `json:"average_messages_per_contact"`
	AverageFileSizeKB         int `json:"average_file_size"`
	StorageUsageMB            int `json:"storage_usage_mb"`
	ActiveContactsRate        int `json:"active_contacts_rate"`
	MediaMessageRate          int `json:"media_message_rate"`
}

type Summary struct {
	Files    FileStats      `json:"files"`
	Contacts ContactStats   `json:"contacts"`
	Messages MessageStats   `json:"messages"`
	Activity ActivityStats  `json:"activity"`
	Derived  SummaryDerived `json:"derived"`
}

// Summarize combines the four aggregates and the cross-cutting rates
func Summarize(files FileStats, contacts ContactStats, messages MessageStats, activity ActivityStats) Summary {
	d := SummaryDerived{
		StorageUsageMB:     roundHalfUp(float64(files.TotalSize) / constants.BytesPerMegabyte),
		ActiveContactsRate: percent(contacts.ActiveContacts, contacts.TotalContacts),
		MediaMessageRate:   percent(messages.MediaMessages, messages.TotalMessages),
	}
	if contacts.TotalContacts > 0 {
		d.AverageMessagesPerContact = roundHalfUp(float64(messages.TotalMessages) / float64(contacts.TotalContacts))
	}
	if files.TotalFiles > 0 {
		d.AverageFileSizeKB = roundHalfUp(float64(files.TotalSize) / float64(files.TotalFiles) / constants.BytesPerKilobyte)
	}

	return Summary{
		Files:    files,
		Contacts: contacts,
		Messages: messages,
		Activity: activity,
		Derived:  d,
	}
}
