package transfer

import (
	"context"
	"fmt"
	"html/template"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/erazemk/inventar/internal/imaging"
	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/store"
)

const (
	qrSize  = 240
	pdfMIME = "application/pdf"
)

// GenerateTransferDocument renders the unsigned transfer form for a group,
// archives it and points every movement of the group at it. The group's
// representative gets a signing link, shown on the form as a QR code when an
// encoder is available.
func (s *Service) GenerateTransferDocument(ctx context.Context, group model.MovementGroup, initiator string) (*Document, error) {
	rep := group.Representative()
	if rep == nil {
		return nil, model.ErrEmptyGroup
	}

	link, err := s.ensureToken(ctx, rep.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing signing link: %w", err)
	}

	names, err := store.SectorNames(ctx, s.DB)
	if err != nil {
		return nil, err
	}

	data := newFormData(group, names, initiator, s.now())
	data.QR = s.qrCode(ctx, rep.ID, link.URL)

	doc, err := s.renderAndStore(ctx, data, fmt.Sprintf("transfer-%d.pdf", rep.ID))
	if err != nil {
		return nil, err
	}

	file := documentFile(doc, "Transfer form", fmt.Sprintf("transfer-%d.pdf", rep.ID))
	if err := store.SetGroupDocument(ctx, s.DB, rep.ID, group.IDs(), file); err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"movement_ids": group.IDs(),
		"document":     doc.Key,
	}).Info("generated transfer document")
	return doc, nil
}

// GenerateSignedTransferDocument renders the transfer form with both
// signatures for the group of movementID, archives it and marks the whole
// group signed. It returns nil without doing anything unless state holds both
// signatures.
func (s *Service) GenerateSignedTransferDocument(ctx context.Context, movementID int64, state model.SignatureState) (*Document, error) {
	if !state.DualSigned() {
		return nil, nil
	}

	group, err := store.ResolveGroup(ctx, s.DB, movementID)
	if err != nil {
		return nil, err
	}
	var signed *model.Movement
	for i := range group.Movements {
		if group.Movements[i].ID == movementID {
			signed = &group.Movements[i]
		}
	}
	if signed == nil {
		return nil, fmt.Errorf("movement %d missing from its group: %w", movementID, model.ErrNotFound)
	}

	names, err := store.SectorNames(ctx, s.DB)
	if err != nil {
		return nil, err
	}

	data := newFormData(group, names, signed.ActorName, s.now())
	data.Signed = true
	data.Signatures = data.Signatures[:0]
	for _, role := range []model.Role{model.RoleSource, model.RoleTarget} {
		sig, err := s.signatureBox(ctx, role, state.For(role))
		if err != nil {
			return nil, err
		}
		data.Signatures = append(data.Signatures, sig)
	}

	name := fmt.Sprintf("transfer-%d-signed.pdf", movementID)
	doc, err := s.renderAndStore(ctx, data, name)
	if err != nil {
		return nil, err
	}

	file := documentFile(doc, "Signed transfer form", name)
	if err := store.FinalizeGroup(ctx, s.DB, movementID, group.IDs(), file); err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"movement_ids": group.IDs(),
		"document":     doc.Key,
	}).Info("generated signed transfer document")
	return doc, nil
}

// RegenerateDocument retries document generation for a movement after a
// failed attempt. Groups holding both signatures get the signed form, all
// others the unsigned one. Finalized groups keep their signed document.
func (s *Service) RegenerateDocument(ctx context.Context, actor model.Actor, movementID int64) (*Document, error) {
	if _, err := s.authorize(ctx, actor, movementID, "regenerating document"); err != nil {
		return nil, err
	}

	group, err := store.ResolveGroup(ctx, s.DB, movementID)
	if err != nil {
		return nil, err
	}
	rep := group.Representative()

	lk, err := s.Locker.Obtain(ctx, finalizeKey(rep.ID))
	if err != nil {
		return nil, fmt.Errorf("locking movement %d: %w", rep.ID, err)
	}
	defer lk.Release(context.WithoutCancel(ctx))

	if rep.FinalizedAt != nil {
		return &Document{Key: rep.DocumentKey, URL: rep.DocumentURL}, nil
	}

	state, err := store.GetSignatureState(ctx, s.DB, rep.ID)
	if err != nil {
		return nil, err
	}
	if !state.DualSigned() {
		return s.GenerateTransferDocument(ctx, group, rep.ActorName)
	}

	// The lock only spans one process when Redis is not configured, so a held
	// claim is dropped only once it is older than any attempt could run.
	released, err := store.ReleaseStaleFinalization(ctx, s.DB, rep.ID, s.staleClaimAge())
	if err != nil {
		return nil, err
	}
	if released {
		s.Log.WithField("movement_id", rep.ID).Warn("dropped stale finalization claim")
	}
	claimed, state, err := store.ClaimFinalization(ctx, s.DB, rep.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("movement %d: %w", rep.ID, model.ErrAlreadySigned)
	}

	doc, err := s.GenerateSignedTransferDocument(ctx, rep.ID, state)
	if err != nil {
		if rerr := store.ReleaseFinalization(context.WithoutCancel(ctx), s.DB, rep.ID); rerr != nil {
			s.Log.WithError(rerr).WithField("movement_id", rep.ID).Error("releasing finalization claim")
		}
		return nil, err
	}
	return doc, nil
}

func (s *Service) renderAndStore(ctx context.Context, data formData, name string) (*Document, error) {
	html, err := data.html()
	if err != nil {
		return nil, err
	}
	pdf, err := s.render(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("rendering pdf: %w", err)
	}
	obj, err := s.Blobs.Put(ctx, pdf, pdfMIME, name, "transfers")
	if err != nil {
		return nil, fmt.Errorf("archiving pdf: %w", err)
	}
	return &Document{Key: obj.Key, URL: obj.URL}, nil
}

// qrCode returns the signing URL as a PNG data URI, or "" if the encoder is
// missing or fails.
func (s *Service) qrCode(ctx context.Context, movementID int64, url string) template.URL {
	if s.QR == nil {
		return ""
	}
	png, err := s.QR.Encode(ctx, url, qrSize)
	if err != nil {
		s.Log.WithError(err).WithField("movement_id", movementID).Warn("qr code unavailable")
		return ""
	}
	return template.URL(imaging.DataURI("image/png", png))
}

func (s *Service) signatureBox(ctx context.Context, role model.Role, f *model.MovementFile) (formSignature, error) {
	box := formSignature{Title: role.Title()}

	data, err := s.Blobs.Get(ctx, f.BlobKey)
	if err != nil {
		return box, fmt.Errorf("loading %s signature: %w", role, err)
	}
	mime := f.MIME
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	box.Image = template.URL(imaging.DataURI(mime, data))

	if label, err := model.DecodeSignatureLabel(f.Label); err == nil {
		box.Signer = label.Signer
		box.Sector = label.SectorName
		if !label.SignedAt.IsZero() {
			box.SignedAt = label.SignedAt.Format(formTimeLayout)
		}
	}
	if box.SignedAt == "" {
		box.SignedAt = f.UploadedAt.Format(formTimeLayout)
	}
	return box, nil
}

func documentFile(doc *Document, label, name string) model.MovementFile {
	return model.MovementFile{
		Kind:         model.FileDocument,
		Label:        label,
		BlobKey:      doc.Key,
		BlobURL:      doc.URL,
		MIME:         pdfMIME,
		OriginalName: name,
	}
}

func finalizeKey(movementID int64) string {
	return fmt.Sprintf("movement:%d:finalize", movementID)
}
