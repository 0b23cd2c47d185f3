package mailer

import (
	"fmt"
	"hallpass/src/lib"
	"hallpass/src/types"
	"log"
)

func EmailQueue() string {
	if q := lib.Settings().EmailsTopic; q != "" {
		return q
	}
	return "emails"
}

// NewMailerMessage queues an email on kafka when a broker is configured and
// sends it directly over SMTP otherwise. Without either it is only logged.
func NewMailerMessage(input *lib.SendMailInput) error {
	if lib.KafkaEnabled() {
		emailBody := types.JSONB{
			"from":      input.From,
			"from-name": input.FromName,
			"to":        input.To,
			"reply-to":  input.ReplyTo,
			"body":      input.Body,
			"html":      input.Html,
			"subject":   input.Subject,
		}
		if err := lib.KafkaProduceMessage(EmailQueue(), input.Subject, emailBody); err != nil {
			return fmt.Errorf("error sending message to queue: %s", err.Error())
		}
		return nil
	}
	if lib.SMTPEnabled() {
		return lib.SendMail(input)
	}
	log.Printf("[MAILER] no transport configured, dropping %q to %v\n", input.Subject, input.To)
	return nil
}
