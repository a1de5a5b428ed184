// internal/notify/templates.go
package notify

import (
	"bytes"
	"fmt"
	"net/url"
	"text/template"

	"memberhub/internal/membership"
)

const (
	subjectMessage      = "Message from Admin"
	subjectVerification = "Please verify your email address"
	subjectSuspension   = "Your account has been suspended"
)

var verificationTemplate = template.Must(template.New("verification").Parse(`
Dear {{.Name}},

Welcome to our member management system!

Please verify your email address by clicking the link below:
[Verification Link: {{.Link}}]

Thank you for joining us!

Best regards,
Admin Team
`))

var suspensionTemplate = template.Must(template.New("suspension").Parse(`
Dear {{.Name}},

We regret to inform you that your account has been suspended.

If you have any questions or concerns, please contact our support team.

Account: {{.Account}}
Email: {{.Email}}

Best regards,
Admin Team
`))

func renderVerification(member *membership.Member, baseURL string) (string, error) {
	return render(verificationTemplate, struct {
		Name string
		Link string
	}{
		Name: member.Name,
		Link: baseURL + "/verify/" + url.PathEscape(member.Account),
	})
}

func renderSuspension(member *membership.Member) (string, error) {
	return render(suspensionTemplate, struct {
		Name    string
		Account string
		Email   string
	}{
		Name:    member.Name,
		Account: member.Account,
		Email:   member.Email,
	})
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
