package scripts

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/acme/voice-outreach/internal/domain"
)

// GenericCategory is the fallback template family used when a business
// category has no dedicated scripts.
const GenericCategory = "general"

// CallData feeds the spoken-line templates.
type CallData struct {
	BusinessName    string
	CustomerName    string
	AppointmentTime string
}

// ReminderScript holds the spoken lines for an appointment reminder call.
type ReminderScript struct {
	Greeting   string
	Confirmed  string
	Reschedule string
	Closing    string
	Voicemail  string
}

// OutreachScript holds the spoken lines for a campaign call.
type OutreachScript struct {
	Greeting  string
	Closing   string
	Voicemail string
}

var reminderScripts = map[string]ReminderScript{
	"dental": {
		Greeting:   "Hello {{.CustomerName}}, this is an automated reminder from {{.BusinessName}}. You have a dental appointment on {{.AppointmentTime}}. Press 1 to confirm, or press 2 if you need to reschedule.",
		Confirmed:  "Thank you, your appointment is confirmed. We look forward to seeing you. Goodbye.",
		Reschedule: "No problem. Our front desk will reach out shortly to find a better time. Goodbye.",
		Closing:    "Thank you. If you need to make changes, please call {{.BusinessName}} directly. Goodbye.",
		Voicemail:  "Hello {{.CustomerName}}, this is {{.BusinessName}} reminding you of your dental appointment on {{.AppointmentTime}}. Please call us if you need to reschedule.",
	},
	"salon": {
		Greeting:   "Hi {{.CustomerName}}, this is {{.BusinessName}} calling about your appointment on {{.AppointmentTime}}. Press 1 to confirm, or press 2 to reschedule.",
		Confirmed:  "Great, you are all set. See you soon. Goodbye.",
		Reschedule: "Got it. Someone from the salon will call you back to rebook. Goodbye.",
		Closing:    "Thanks. Feel free to call {{.BusinessName}} with any questions. Goodbye.",
		Voicemail:  "Hi {{.CustomerName}}, {{.BusinessName}} here reminding you of your appointment on {{.AppointmentTime}}. Call us back if anything changes.",
	},
	GenericCategory: {
		Greeting:   "Hello {{.CustomerName}}, this is an automated call from {{.BusinessName}}. You have an appointment scheduled for {{.AppointmentTime}}. Press 1 to confirm, or press 2 if you need to reschedule.",
		Confirmed:  "Thank you, your appointment is confirmed. Goodbye.",
		Reschedule: "Understood. The business will contact you to arrange a new time. Goodbye.",
		Closing:    "Thank you for your time. Goodbye.",
		Voicemail:  "Hello {{.CustomerName}}, this is {{.BusinessName}} reminding you of your appointment on {{.AppointmentTime}}. Please call back if you need to make changes.",
	},
}

var outreachScripts = map[domain.CampaignType]map[string]OutreachScript{
	domain.CampaignTypeReengagement: {
		GenericCategory: {
			Greeting:  "Hello {{.CustomerName}}, this is {{.BusinessName}}. It has been a while since your last visit and we would love to see you again. Would you like to book an appointment?",
			Closing:   "Thanks for your time. You can always reach {{.BusinessName}} to book. Goodbye.",
			Voicemail: "Hello {{.CustomerName}}, {{.BusinessName}} here. It has been a while since your last visit. Give us a call whenever you would like to book.",
		},
	},
	domain.CampaignTypeReviewCollection: {
		GenericCategory: {
			Greeting:  "Hello {{.CustomerName}}, this is {{.BusinessName}}. Thank you for your recent visit. We would really appreciate it if you could leave us a quick review.",
			Closing:   "Thanks so much for supporting {{.BusinessName}}. Goodbye.",
			Voicemail: "Hello {{.CustomerName}}, {{.BusinessName}} here. Thank you for your recent visit. We would love a quick review when you have a minute.",
		},
	},
	domain.CampaignTypeNoShowFollowUp: {
		GenericCategory: {
			Greeting:  "Hello {{.CustomerName}}, this is {{.BusinessName}}. We missed you at your recent appointment. Would you like to rebook?",
			Closing:   "No worries. Call {{.BusinessName}} whenever you are ready. Goodbye.",
			Voicemail: "Hello {{.CustomerName}}, {{.BusinessName}} here. We missed you recently. Call us back to find a new time.",
		},
	},
}

// ForReminder resolves the reminder script family for a business category,
// falling back to the generic family when none matches.
func ForReminder(category string) ReminderScript {
	if script, ok := reminderScripts[normalize(category)]; ok {
		return script
	}
	return reminderScripts[GenericCategory]
}

// ForOutreach resolves the outreach script for a campaign type and business
// category. Unknown categories fall back to the type's generic script;
// unknown types fall back to re-engagement.
func ForOutreach(campaignType domain.CampaignType, category string) OutreachScript {
	byCategory, ok := outreachScripts[campaignType]
	if !ok {
		byCategory = outreachScripts[domain.CampaignTypeReengagement]
	}
	if script, ok := byCategory[normalize(category)]; ok {
		return script
	}
	return byCategory[GenericCategory]
}

// Render executes a spoken-line template against call data.
func Render(line string, data CallData) (string, error) {
	tmpl, err := template.New("line").Parse(line)
	if err != nil {
		return "", fmt.Errorf("scripts: parse template: %w", err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("scripts: render template: %w", err)
	}
	return sb.String(), nil
}

func normalize(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}
