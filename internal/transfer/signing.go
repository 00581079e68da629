package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/erazemk/inventar/internal/imaging"
	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/store"
)

// MaxNameRunes caps free-text signer and custom sector names.
const MaxNameRunes = 120

// MaxUploadBytes caps a document uploaded alongside signatures.
const MaxUploadBytes = 20 << 20

// Result messages.
const (
	MessageAwaiting     = "awaiting other party"
	MessageSigned       = "transfer signed"
	MessageDocumentFail = "signatures saved but the signed transfer document could not be generated"
	MessageFileSaved    = "file saved"
)

// RoleSignature is one party's signature as submitted on the signing page.
type RoleSignature struct {
	// Sector is a sector ID, "null" for unassigned or "custom".
	Sector       string `json:"sector"`
	CustomSector string `json:"custom_sector,omitempty"`
	Signer       string `json:"signer"`
	// Image is a "data:image/...;base64," payload.
	Image string `json:"image"`
}

// Upload is a file sent with a signature submission.
type Upload struct {
	Name string
	MIME string
	Data []byte
}

// Submission carries up to one signature per role and an optional file.
type Submission struct {
	Source   *RoleSignature `json:"source,omitempty"`
	Target   *RoleSignature `json:"target,omitempty"`
	Document *Upload        `json:"-"`
}

func (s Submission) role(r model.Role) *RoleSignature {
	var rs *RoleSignature
	switch r {
	case model.RoleSource:
		rs = s.Source
	case model.RoleTarget:
		rs = s.Target
	}
	if rs == nil || strings.TrimSpace(rs.Image) == "" {
		return nil
	}
	return rs
}

// SubmitResult reports what a submission saved. Roles are handled
// independently: RoleErrors lists the roles that were rejected while others
// may still have been saved.
type SubmitResult struct {
	MovementID    int64                 `json:"movement_id"`
	Saved         []model.Role          `json:"saved"`
	RoleErrors    map[model.Role]string `json:"role_errors,omitempty"`
	FileSaved     bool                  `json:"file_saved"`
	FileError     string                `json:"file_error,omitempty"`
	State         model.SignatureState  `json:"state"`
	Status        model.TransferStatus  `json:"status"`
	Finalized     bool                  `json:"finalized"`
	Document      *Document             `json:"document,omitempty"`
	DocumentError string                `json:"document_error,omitempty"`
	Message       string                `json:"message"`
}

type preparedSignature struct {
	role  model.Role
	label model.SignatureLabel
	image *imaging.Result
}

// SubmitSignature validates and stores the signatures of a submission for
// the movement behind token, then finalizes the transfer if both parties have
// signed. Unknown and expired tokens fail with model.ErrTokenNotFound and
// model.ErrTokenExpired before anything is read or written.
func (s *Service) SubmitSignature(ctx context.Context, token string, sub Submission) (*SubmitResult, error) {
	tok, err := store.LookupToken(ctx, s.DB, token, s.now())
	if err != nil {
		return nil, err
	}
	m, err := store.GetMovement(ctx, s.DB, tok.MovementID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, model.ErrTokenNotFound
	}

	hasFile := sub.Document != nil && len(sub.Document.Data) > 0
	if sub.role(model.RoleSource) == nil && sub.role(model.RoleTarget) == nil && !hasFile {
		return nil, model.ErrNothingToSave
	}
	if m.FinalizedAt != nil && !hasFile {
		return nil, model.ErrAlreadySigned
	}

	log := s.Log.WithField("movement_id", m.ID)
	result := &SubmitResult{MovementID: m.ID, RoleErrors: map[model.Role]string{}}

	sectors, err := s.sectorDirectory(ctx)
	if err != nil {
		return nil, err
	}

	var prepared []preparedSignature
	var messages []string
	for _, role := range []model.Role{model.RoleSource, model.RoleTarget} {
		rs := sub.role(role)
		if rs == nil {
			continue
		}
		p, errs := s.prepareSignature(role, rs, sectors, m.FinalizedAt != nil)
		if len(errs) > 0 {
			msg := strings.Join(errs, "; ")
			result.RoleErrors[role] = msg
			messages = append(messages, role.Title()+": "+msg)
			continue
		}
		prepared = append(prepared, p)
	}

	var upload *Upload
	if hasFile {
		upload, err = prepareUpload(sub.Document)
		if err != nil {
			result.FileError = err.Error()
			messages = append(messages, "File: "+err.Error())
		}
	}

	if len(prepared) == 0 && upload == nil {
		return nil, model.NewValidationError(messages...)
	}

	for _, p := range prepared {
		if err := s.saveSignature(ctx, m.ID, p); err != nil {
			log.WithError(err).WithField("role", p.role).Error("saving signature failed")
			result.RoleErrors[p.role] = "could not store signature"
			continue
		}
		result.Saved = append(result.Saved, p.role)
	}

	if upload != nil {
		if _, err := s.saveUpload(ctx, m.ID, upload); err != nil {
			log.WithError(err).Error("saving upload failed")
			result.FileError = "could not store file"
		} else {
			result.FileSaved = true
		}
	}

	if len(result.Saved) == 0 && !result.FileSaved {
		return nil, fmt.Errorf("saving submission for movement %d: storage unavailable", m.ID)
	}
	if len(result.Saved) > 0 {
		log.WithField("roles", result.Saved).Info("signatures saved")
	}

	doc, finalized, err := s.finalize(ctx, m.ID)
	if err != nil {
		log.WithError(err).Error("signed transfer document generation failed")
		result.DocumentError = err.Error()
	}
	result.Finalized = finalized
	result.Document = doc

	if err := s.refresh(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// SigningState returns the current signing state behind a public token.
func (s *Service) SigningState(ctx context.Context, token string) (*model.Movement, model.SignatureState, error) {
	tok, err := store.LookupToken(ctx, s.DB, token, s.now())
	if err != nil {
		return nil, model.SignatureState{}, err
	}
	m, err := store.GetMovement(ctx, s.DB, tok.MovementID)
	if err != nil {
		return nil, model.SignatureState{}, err
	}
	if m == nil {
		return nil, model.SignatureState{}, model.ErrTokenNotFound
	}
	state, err := store.GetSignatureState(ctx, s.DB, m.ID)
	if err != nil {
		return nil, model.SignatureState{}, err
	}
	return m, state, nil
}

// finalize generates the signed document once both signatures are present.
// Concurrent callers are serialized by the locker and only the one holding
// the finalization claim renders.
func (s *Service) finalize(ctx context.Context, movementID int64) (*Document, bool, error) {
	lk, err := s.Locker.Obtain(ctx, finalizeKey(movementID))
	if err != nil {
		return nil, false, fmt.Errorf("locking movement %d: %w", movementID, err)
	}
	defer lk.Release(context.WithoutCancel(ctx))

	claimed, state, err := store.ClaimFinalization(ctx, s.DB, movementID)
	if err != nil || !claimed {
		return nil, false, err
	}

	doc, err := s.GenerateSignedTransferDocument(ctx, movementID, state)
	if err != nil {
		if rerr := store.ReleaseFinalization(context.WithoutCancel(ctx), s.DB, movementID); rerr != nil {
			s.Log.WithError(rerr).WithField("movement_id", movementID).Error("releasing finalization claim")
		}
		return nil, false, err
	}
	return doc, true, nil
}

func (s *Service) refresh(ctx context.Context, result *SubmitResult) error {
	m, err := store.GetMovement(ctx, s.DB, result.MovementID)
	if err != nil {
		return err
	}
	state, err := store.GetSignatureState(ctx, s.DB, result.MovementID)
	if err != nil {
		return err
	}
	result.State = state
	if m != nil {
		result.Status = m.TransferStatus
	}

	switch {
	case result.Finalized:
		result.Message = MessageSigned
	case result.DocumentError != "":
		result.Message = MessageDocumentFail
	case state.DualSigned():
		result.Message = MessageSigned
	case state.Source != nil || state.Target != nil:
		result.Message = MessageAwaiting
	default:
		result.Message = MessageFileSaved
	}
	if len(result.RoleErrors) == 0 {
		result.RoleErrors = nil
	}
	return nil
}

// sectorDirectory lists the sectors a signer may pick.
func (s *Service) sectorDirectory(ctx context.Context) (model.SectorNames, error) {
	sectors, err := store.ListSectors(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	names := make(model.SectorNames, len(sectors))
	for _, sec := range sectors {
		names[sec.ID] = sec.Name
	}
	return names, nil
}

func (s *Service) prepareSignature(role model.Role, rs *RoleSignature, sectors model.SectorNames, finalized bool) (preparedSignature, []string) {
	var errs []string
	if finalized {
		return preparedSignature{}, []string{model.ErrAlreadySigned.Error()}
	}

	label := model.SignatureLabel{Version: model.LabelVersion, Role: role, SignedAt: s.now().UTC()}

	choice, err := model.ParseSectorChoice(rs.Sector)
	if err != nil {
		errs = append(errs, err.Error())
	} else {
		label.Choice = choice
		switch choice.Kind {
		case model.ChoiceSector:
			name, ok := sectors[choice.SectorID]
			if !ok {
				errs = append(errs, fmt.Sprintf("unknown sector %d", choice.SectorID))
			}
			label.SectorName = name
		case model.ChoiceUnassigned:
			label.SectorName = "Unassigned"
		case model.ChoiceCustom:
			name := truncate(strings.TrimSpace(rs.CustomSector), MaxNameRunes)
			if name == "" {
				errs = append(errs, "custom sector name required")
			}
			label.SectorName = name
		}
	}

	label.Signer = truncate(strings.TrimSpace(rs.Signer), MaxNameRunes)
	if label.Signer == "" {
		errs = append(errs, "signer name required")
	}

	img, err := imaging.ProcessSignature(rs.Image)
	if err != nil {
		errs = append(errs, "invalid signature image: "+err.Error())
	}

	if len(errs) > 0 {
		return preparedSignature{}, errs
	}
	return preparedSignature{role: role, label: label, image: img}, nil
}

func (s *Service) saveSignature(ctx context.Context, movementID int64, p preparedSignature) error {
	obj, err := s.Blobs.Put(ctx, p.image.Data, p.image.MIME,
		fmt.Sprintf("signature-%s.png", p.role), fmt.Sprintf("signatures/%d", movementID))
	if err != nil {
		return err
	}
	_, err = store.AddMovementFile(ctx, s.DB, model.MovementFile{
		MovementID:   movementID,
		Kind:         model.FileSignature,
		Label:        p.label.Encode(),
		BlobKey:      obj.Key,
		BlobURL:      obj.URL,
		MIME:         p.image.MIME,
		OriginalName: fmt.Sprintf("signature-%s.png", p.role),
	})
	return err
}

// prepareUpload sniffs an uploaded file. Images are normalized and stored as
// photos; PDFs are kept as documents.
func prepareUpload(u *Upload) (*Upload, error) {
	if len(u.Data) > MaxUploadBytes {
		return nil, fmt.Errorf("file too large: %d bytes", len(u.Data))
	}
	detected := http.DetectContentType(u.Data)
	switch {
	case strings.HasPrefix(detected, "image/"):
		img, err := imaging.Process(bytes.NewReader(u.Data))
		if err != nil {
			return nil, err
		}
		return &Upload{Name: u.Name, MIME: img.MIME, Data: img.Data}, nil
	case detected == pdfMIME:
		return &Upload{Name: u.Name, MIME: pdfMIME, Data: u.Data}, nil
	}
	return nil, errors.New("unsupported file type " + detected)
}

func (s *Service) saveUpload(ctx context.Context, movementID int64, u *Upload) (*model.MovementFile, error) {
	kind := model.FileDocument
	if strings.HasPrefix(u.MIME, "image/") {
		kind = model.FilePhoto
	}
	obj, err := s.Blobs.Put(ctx, u.Data, u.MIME, u.Name, fmt.Sprintf("uploads/%d", movementID))
	if err != nil {
		return nil, err
	}
	return store.AddMovementFile(ctx, s.DB, model.MovementFile{
		MovementID:   movementID,
		Kind:         kind,
		BlobKey:      obj.Key,
		BlobURL:      obj.URL,
		MIME:         u.MIME,
		OriginalName: u.Name,
	})
}

// AttachFile stores an operator upload on a movement.
func (s *Service) AttachFile(ctx context.Context, actor model.Actor, movementID int64, u *Upload) (*model.MovementFile, error) {
	if _, err := s.authorize(ctx, actor, movementID, "attaching file"); err != nil {
		return nil, err
	}
	if u == nil || len(u.Data) == 0 {
		return nil, model.ErrNothingToSave
	}

	prepared, err := prepareUpload(u)
	if err != nil {
		return nil, model.NewValidationError(err.Error())
	}
	return s.saveUpload(ctx, movementID, prepared)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
