package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	subjectSignupCode = "TeenBudget: your verification code"
	subjectResentCode = "TeenBudget: your new verification code"
	subjectResetLink  = "TeenBudget: reset your password"
)

// SignupCode renders the first verification email of a signup.
func SignupCode(firstName, code string) (subject, html string, err error) {
	html, err = render("signup_code.html", map[string]string{"FirstName": firstName, "Code": code})
	return subjectSignupCode, html, err
}

// ResentCode renders the email sent when a code is requested again.
func ResentCode(code string) (subject, html string, err error) {
	html, err = render("resent_code.html", map[string]string{"Code": code})
	return subjectResentCode, html, err
}

// ResetLink renders the password reset email.
func ResetLink(link string) (subject, html string, err error) {
	html, err = render("reset_link.html", map[string]string{"Link": link})
	return subjectResetLink, html, err
}

func render(name string, data map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", name, err)
	}
	return buf.String(), nil
}
