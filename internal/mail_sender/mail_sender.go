package mailsender

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SendVerificationCode delivers the one-time code to the user's mailbox.
func (m *Mailer) SendVerificationCode(to, username string, code int32) error {
	msg := gomail.NewMessage()
	msg.SetHeader("To", to)
	msg.SetHeader("From", m.Username)
	msg.SetHeader("Subject", "Verify your email")

	body := fmt.Sprintf(
		"Hi %s,\n\nYour verification code is %06d. It expires in 10 minutes.\n",
		username, code,
	)
	msg.SetBody("text/plain", body)

	dialer := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	return dialer.DialAndSend(msg)
}
