package queue

import (
	"bytes"
	"context"
	"text/template"
)

// Notifier is the delivery capability consumed by the orchestrator. Dispatch
// is fire-and-forget: implementations must never surface transport failures
// back into a queue operation.
type Notifier interface {
	Notify(ctx context.Context, phone, kind, title, body string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, phone, kind, title, body string) {}

var _ Notifier = NopNotifier{}

// StaffAlerter delivers operational alerts to clinic staff. Like Notifier,
// delivery is fire-and-forget.
type StaffAlerter interface {
	StaffAlert(ctx context.Context, subject, body string)
}

// NopStaffAlerter discards all staff alerts.
type NopStaffAlerter struct{}

func (NopStaffAlerter) StaffAlert(ctx context.Context, subject, body string) {}

var _ StaffAlerter = NopStaffAlerter{}

// Patient-facing message texts. Wording is part of the clinic's patient
// communication, so it lives with the orchestrator that decides what to
// send; transports only carry it.
var messageTemplates = template.Must(template.New("queue").Option("missingkey=error").Parse(`
{{- define "confirmation" -}}
Your token is confirmed: #{{.TokenNo}}.
Please arrive between {{.WindowStart}} and {{.WindowEnd}}.
Times may vary depending on consultation duration and urgent cases.
{{- end -}}

{{- define "reslotted" -}}
Your token #{{.TokenNo}} has been moved.
New arrival window: {{.WindowStart}} to {{.WindowEnd}}.
{{- end -}}

{{- define "delay" -}}
There may be a delay of approximately {{.Minutes}} minutes due to a high-priority case.
{{- end -}}

{{- define "cancelled" -}}
Today's OPD has been closed. Your token is cancelled. Please contact the clinic for next steps.
{{- end -}}

{{- define "completed" -}}
Your consultation is complete. Thank you for visiting; contact the clinic if you need a follow-up.
{{- end -}}
`))

func renderMessage(name string, data any) string {
	var buf bytes.Buffer
	if err := messageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		// Templates are static and data is supplied by the callers below,
		// so this only trips on a programming error.
		return ""
	}
	return buf.String()
}

func confirmationMessage(tokenNo int, windowStart, windowEnd string) string {
	return renderMessage("confirmation", map[string]any{
		"TokenNo": tokenNo, "WindowStart": windowStart, "WindowEnd": windowEnd,
	})
}

func reslottedMessage(tokenNo int, windowStart, windowEnd string) string {
	return renderMessage("reslotted", map[string]any{
		"TokenNo": tokenNo, "WindowStart": windowStart, "WindowEnd": windowEnd,
	})
}

func delayMessage(minutes int) string {
	return renderMessage("delay", map[string]any{"Minutes": minutes})
}

func sessionCancelledMessage() string {
	return renderMessage("cancelled", nil)
}

func completedMessage() string {
	return renderMessage("completed", nil)
}
