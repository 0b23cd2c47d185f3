package common

import (
	"hallpass/src/lib"
	"log"

	"github.com/tidwall/gjson"
)

func parseEmail(spayload string) *lib.SendMailInput {
	if !gjson.Valid(spayload) {
		log.Println("Received invalid json body. Aborting")
		return nil
	}
	toArr := gjson.Get(spayload, "to").Array()
	to := make([]string, 0, len(toArr))
	for _, item := range toArr {
		to = append(to, item.String())
	}
	return &lib.SendMailInput{
		From:     gjson.Get(spayload, "from").String(),
		FromName: gjson.Get(spayload, "from-name").String(),
		To:       to,
		ReplyTo:  gjson.Get(spayload, "reply-to").String(),
		Subject:  gjson.Get(spayload, "subject").String(),
		Body:     gjson.Get(spayload, "body").String(),
		Html:     gjson.Get(spayload, "html").Bool(),
	}
}

// EmailsToSendConsumer sends one queued email over SMTP.
func EmailsToSendConsumer(spayload string) {
	input := parseEmail(spayload)
	if input == nil {
		return
	}
	if len(input.To) == 0 {
		log.Printf("Dropping %q: no recipients\n", input.Subject)
		return
	}
	log.Printf("from [%s] with subject: %s\n", input.From, input.Subject)
	if err := lib.SendMail(input); err != nil {
		log.Printf("Error sending email: %s\n", err.Error())
	}
}
