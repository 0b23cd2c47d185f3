package lib

import (
	"errors"
	"log"

	"github.com/wneessen/go-mail"
)

func SMTPEnabled() bool {
	return Settings().SMTPHost != ""
}

func GetSMTPClient() (*mail.Client, error) {
	cfg := Settings()
	if cfg.SMTPHost == "" {
		return nil, errors.New("SMTP_HOST is not set")
	}
	port := cfg.SMTPPort
	if port <= 0 {
		port = 587
	}
	user, pass := cfg.SMTPUsername, cfg.SMTPPassword
	opts := []mail.Option{mail.WithPort(port)}
	if user != "" {
		opts = append(opts, mail.WithSMTPAuth(mail.SMTPAuthPlain), mail.WithUsername(user), mail.WithPassword(pass))
	}
	c, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		log.Printf("Could not initialize smtp client: %s\n", err.Error())
		return nil, err
	}
	return c, nil
}

func SendMail(inputParams *SendMailInput) error {
	c, err := GetSMTPClient()
	if err != nil {
		return err
	}
	msg, err := NewMailMsg(inputParams)
	if err != nil {
		return err
	}
	return c.DialAndSend(msg)
}

// NewMailMsg builds the message without sending it.
func NewMailMsg(inputParams *SendMailInput) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(inputParams.FromName, inputParams.From); err != nil {
		log.Printf("Failed to set From address: %s\n", err.Error())
		return nil, err
	}
	if err := msg.To(inputParams.To...); err != nil {
		log.Printf("Failed to set To address: %s\n", err.Error())
		return nil, err
	}
	if inputParams.ReplyTo != "" {
		if err := msg.ReplyTo(inputParams.ReplyTo); err != nil {
			log.Printf("Failed to set Reply-To address: %s\n", err.Error())
		}
	}
	msg.Subject(inputParams.Subject)
	if inputParams.Html {
		msg.SetBodyString(mail.TypeTextHTML, inputParams.Body)
	} else {
		msg.SetBodyString(mail.TypeTextPlain, inputParams.Body)
	}
	return msg, nil
}

type SendMailInput struct {
	From     string
	FromName string
	To       []string
	ReplyTo  string
	Subject  string
	Body     string
	Html     bool
}
