package mailer

import (
	"fmt"
	"hallpass/src/lib"
	"hallpass/src/models"
	"hallpass/src/types"
	"strings"
	"time"
)

const timeLayout = "2006-01-02 15:04"

func mailFrom() string {
	if from := lib.Settings().MailFrom; from != "" {
		return from
	}
	return "no-reply@hallpass.local"
}

func passTypeLabel(t types.PassType) string {
	if t == types.PASS_OUTING {
		return "outing"
	}
	return "early leave"
}

func passWindow(pass *models.Pass, loc *time.Location) string {
	start := pass.StartTime.In(loc).Format(timeLayout)
	if pass.ReturnTime != nil {
		return fmt.Sprintf("%s to %s", start, pass.ReturnTime.In(loc).Format(timeLayout))
	}
	return fmt.Sprintf("from %s", start)
}

// PassRequested notifies the assigned teacher of a new pending pass.
func PassRequested(pass *models.Pass, student, teacher *models.User, loc *time.Location) *lib.SendMailInput {
	var body strings.Builder
	fmt.Fprintf(&body, "%s has requested an %s pass.\n\n", student.FullName(), passTypeLabel(pass.Type))
	fmt.Fprintf(&body, "When: %s\n", passWindow(pass, loc))
	fmt.Fprintf(&body, "Reason: %s\n", pass.Reason)
	if host := lib.Settings().AppHost; host != "" {
		fmt.Fprintf(&body, "\nReview it at %s/passes/%s\n", strings.TrimSuffix(host, "/"), pass.ID)
	}
	return &lib.SendMailInput{
		From:     mailFrom(),
		FromName: "Hall Pass",
		To:       []string{teacher.Email},
		Subject:  fmt.Sprintf("New pass request from %s", student.FullName()),
		Body:     body.String(),
	}
}

// PassDecided notifies the student that the teacher approved or rejected their pass.
func PassDecided(pass *models.Pass, student, teacher *models.User, loc *time.Location) *lib.SendMailInput {
	var body strings.Builder
	verb := "approved"
	if pass.Status == types.PASS_REJECTED {
		verb = "rejected"
	}
	fmt.Fprintf(&body, "%s %s your %s pass (%s).\n", teacher.FullName(), verb, passTypeLabel(pass.Type), passWindow(pass, loc))
	if pass.RejectReason != nil {
		fmt.Fprintf(&body, "Reason: %s\n", *pass.RejectReason)
	}
	if pass.Status == types.PASS_APPROVED {
		fmt.Fprintf(&body, "Show the QR code on the pass page when leaving. It is valid until %s.\n", pass.ExpiresAt.In(loc).Format(timeLayout))
	}
	return &lib.SendMailInput{
		From:     mailFrom(),
		FromName: "Hall Pass",
		To:       []string{student.Email},
		ReplyTo:  teacher.Email,
		Subject:  fmt.Sprintf("Your pass was %s", verb),
		Body:     body.String(),
	}
}
