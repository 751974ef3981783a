package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

var templates = template.Must(template.New("email").Parse(`
{{define "booking_confirmed"}}<p>Hi {{.Name}},</p>
<p>Your booking for <strong>{{.Title}}</strong> is confirmed. Amount paid: {{.Currency}} {{.Amount}}.</p>
<p>Booking reference: #{{.BookingID}}</p>{{end}}
{{define "credit_requested"}}<p>A new credit request needs review.</p>
<ul><li>User: {{.Email}}</li><li>Service: {{.ServiceType}}</li><li>Credits: {{.Amount}}</li><li>Reason: {{.Reason}}</li></ul>{{end}}
{{define "credit_decided"}}<p>Your request for {{.Amount}} {{.ServiceType}} credits was <strong>{{.Status}}</strong>.</p>
{{if .Notes}}<p>Notes: {{.Notes}}</p>{{end}}{{end}}
{{define "inquiry"}}<p>New inquiry from {{.Name}} ({{.Email}})</p>
{{if .Phone}}<p>Phone: {{.Phone}}</p>{{end}}<p>{{.Message}}</p>{{end}}
{{define "password_reset"}}<p>Your password reset code is <strong>{{.Code}}</strong>.</p>
<p>It expires in {{.Minutes}} minutes. If you did not ask for this, ignore this email.</p>{{end}}
`))

// Render executes one of the named email templates.
func Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
