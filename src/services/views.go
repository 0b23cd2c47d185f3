package services

import (
	"context"
	"hallpass/src/models"
	"hallpass/src/types"
	"hallpass/src/utils"
	"log"
)

// PassView is a pass joined with its users and, for approved passes, its rendered QR code.
type PassView struct {
	Pass    models.Pass
	Student models.User
	Teacher models.User
	QRCode  string
}

func passUser(u models.User) types.APIResponsePassUser {
	return types.APIResponsePassUser{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName}
}

func (v *PassView) Response() types.APIResponsePass {
	return types.APIResponsePass{
		ID:           v.Pass.ID,
		Type:         v.Pass.Type,
		StartTime:    v.Pass.StartTime,
		ReturnTime:   v.Pass.ReturnTime,
		ExpiresAt:    v.Pass.ExpiresAt,
		Status:       v.Pass.Status,
		Reason:       v.Pass.Reason,
		RejectReason: v.Pass.RejectReason,
		Student:      passUser(v.Student),
		Teacher:      passUser(v.Teacher),
		QRCode:       v.QRCode,
		CreatedAt:    v.Pass.CreatedAt,
		DecidedAt:    v.Pass.DecidedAt,
	}
}

func Responses(views []PassView) []types.APIResponsePass {
	out := make([]types.APIResponsePass, 0, len(views))
	for i := range views {
		out = append(out, views[i].Response())
	}
	return out
}

func (s *PassService) views(ctx context.Context, passes []models.Pass, withQRCode bool) ([]PassView, error) {
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, p := range passes {
		for _, id := range []string{p.StudentID, p.TeacherID} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	lookup := func(id string) models.User {
		if u, ok := byID[id]; ok {
			return u
		}
		return models.User{ID: id}
	}

	views := make([]PassView, 0, len(passes))
	for _, p := range passes {
		view := PassView{Pass: p, Student: lookup(p.StudentID), Teacher: lookup(p.TeacherID)}
		if withQRCode && hasQRCode(p.Status) {
			view.QRCode = s.qrCode(ctx, &p)
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *PassService) view(ctx context.Context, pass *models.Pass, withQRCode bool) (*PassView, error) {
	views, err := s.views(ctx, []models.Pass{*pass}, withQRCode)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// hasQRCode reports whether a pass in status carries its code. Expired passes
// keep theirs so clients can show it greyed out; verification still reports EXPIRED.
func hasQRCode(status types.PassStatus) bool {
	return status == types.PASS_APPROVED || status == types.PASS_EXPIRED
}

// QRPayload returns the text encoded into the pass's QR code.
func QRPayload(pass *models.Pass) (string, error) {
	return utils.EncodePayload(pass.ID, pass.VerificationToken)
}

func (s *PassService) qrCode(ctx context.Context, pass *models.Pass) string {
	if s.qr == nil {
		return ""
	}
	payload, err := QRPayload(pass)
	if err != nil {
		log.Printf("Error encoding pass code for %s: %s\n", pass.ID, err.Error())
		return ""
	}
	dataURL, err := s.qr.QRCode(ctx, pass.ID, payload)
	if err != nil {
		log.Printf("Error rendering qrcode for %s: %s\n", pass.ID, err.Error())
		return ""
	}
	return dataURL
}
