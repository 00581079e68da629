package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Role is the party a signature belongs to.
type Role string

// Signing roles.
const (
	RoleSource Role = "source"
	RoleTarget Role = "target"
)

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(RoleSource):
		return RoleSource, true
	case string(RoleTarget):
		return RoleTarget, true
	}
	return "", false
}

// Title returns the capitalised role name used in printed labels.
func (r Role) Title() string {
	switch r {
	case RoleSource:
		return "Source"
	case RoleTarget:
		return "Target"
	}
	return string(r)
}

// SectorChoiceKind says how a signer identified their sector.
type SectorChoiceKind string

// Sector choice kinds.
const (
	ChoiceSector     SectorChoiceKind = "sector"
	ChoiceUnassigned SectorChoiceKind = "null"
	ChoiceCustom     SectorChoiceKind = "custom"
)

// SectorChoice is the sector a signer picked: a known sector, the unassigned
// pool, or a free-text custom name.
type SectorChoice struct {
	Kind     SectorChoiceKind
	SectorID int64
}

// ParseSectorChoice parses the raw form value: a sector ID, "null" or "custom".
func ParseSectorChoice(raw string) (SectorChoice, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "":
		return SectorChoice{}, errors.New("sector choice required")
	case string(ChoiceUnassigned):
		return SectorChoice{Kind: ChoiceUnassigned}, nil
	case string(ChoiceCustom):
		return SectorChoice{Kind: ChoiceCustom}, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return SectorChoice{}, fmt.Errorf("invalid sector choice %q", raw)
	}
	return SectorChoice{Kind: ChoiceSector, SectorID: id}, nil
}

// Label limits. Names are cut to both a rune count and a byte budget measured
// on their JSON-escaped form, so the structured label always fits in
// MaxLabelLength bytes and a decoded label carries the same truncated values.
// The JSON envelope around the two names takes at most 100 bytes.
const (
	LabelVersion        = 1
	MaxLabelLength      = 255
	MaxLabelSectorRunes = 60
	MaxLabelSignerRunes = 80
	MaxLabelSectorBytes = 64
	MaxLabelSignerBytes = 88
)

const legacyLabelPrefix = "Signature - "

// SignatureLabel is the structured payload stored in a signature file's label.
type SignatureLabel struct {
	Version    int
	Role       Role
	Choice     SectorChoice
	SectorName string
	Signer     string
	SignedAt   time.Time

	// Legacy is set when the label was decoded from the free-text form.
	Legacy bool
}

type labelPayload struct {
	V   int    `json:"v"`
	R   string `json:"r"`
	C   string `json:"c,omitempty"`
	SID int64  `json:"sid,omitempty"`
	S   string `json:"s,omitempty"`
	N   string `json:"n"`
	T   string `json:"t,omitempty"`
}

// Encode returns the compact structured form of the label.
func (l SignatureLabel) Encode() string {
	sector := fitLabelField(l.SectorName, MaxLabelSectorRunes, MaxLabelSectorBytes)
	signer := fitLabelField(l.Signer, MaxLabelSignerRunes, MaxLabelSignerBytes)

	p := labelPayload{
		V:   LabelVersion,
		R:   string(l.Role),
		C:   string(l.Choice.Kind),
		SID: l.Choice.SectorID,
		S:   sector,
		N:   signer,
	}
	if !l.SignedAt.IsZero() {
		p.T = l.SignedAt.UTC().Format(time.RFC3339)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Only strings and integers; encoding cannot fail.
	_ = enc.Encode(p)
	return strings.TrimSpace(buf.String())
}

// DecodeSignatureLabel parses a label written by Encode or by the legacy
// free-text pattern "Signature - <Role> - <signer> / <sector>".
func DecodeSignatureLabel(s string) (SignatureLabel, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		var p labelPayload
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return SignatureLabel{}, fmt.Errorf("decoding signature label: %w", err)
		}
		if p.V < 1 {
			return SignatureLabel{}, fmt.Errorf("unsupported signature label version %d", p.V)
		}
		role, ok := ParseRole(p.R)
		if !ok {
			return SignatureLabel{}, fmt.Errorf("unknown signature role %q", p.R)
		}
		l := SignatureLabel{
			Version:    p.V,
			Role:       role,
			Choice:     SectorChoice{Kind: SectorChoiceKind(p.C), SectorID: p.SID},
			SectorName: p.S,
			Signer:     p.N,
		}
		if p.T != "" {
			if t, err := time.Parse(time.RFC3339, p.T); err == nil {
				l.SignedAt = t
			}
		}
		return l, nil
	}

	if !strings.HasPrefix(s, legacyLabelPrefix) {
		return SignatureLabel{}, errors.New("not a signature label")
	}
	rest := strings.TrimPrefix(s, legacyLabelPrefix)
	roleWord, text, _ := strings.Cut(rest, " - ")
	role, ok := ParseRole(roleWord)
	if !ok {
		return SignatureLabel{}, fmt.Errorf("unknown signature role %q", roleWord)
	}

	l := SignatureLabel{Role: role, Legacy: true}
	// The legacy form never escaped the separator, so a signer name containing
	// " / " is split at its last occurrence and loses its tail to the sector.
	if i := strings.LastIndex(text, " / "); i >= 0 {
		l.Signer = strings.TrimSpace(text[:i])
		l.SectorName = strings.TrimSpace(text[i+3:])
	} else {
		l.Signer = strings.TrimSpace(text)
	}
	return l, nil
}

// fitLabelField normalises a name and cuts it to at most maxRunes runes whose
// JSON-escaped size stays within maxBytes.
func fitLabelField(s string, maxRunes, maxBytes int) string {
	s = norm.NFC.String(strings.ToValidUTF8(strings.TrimSpace(s), "\uFFFD"))
	size, runes := 0, 0
	for i, r := range s {
		n := escapedLen(r)
		if runes == maxRunes || size+n > maxBytes {
			return strings.TrimSpace(s[:i])
		}
		size += n
		runes++
	}
	return s
}

// escapedLen is the number of bytes encoding/json writes for r with HTML
// escaping off. Control characters are counted at their longest form.
func escapedLen(r rune) int {
	switch {
	case r == '"', r == '\\', r == '\n', r == '\r', r == '\t':
		return 2
	case r < 0x20, r == '\u2028', r == '\u2029':
		return 6
	}
	return utf8.RuneLen(r)
}

// SignatureState is the derived signing state of a movement: the most recent
// signature per role, everything else bucketed as extras.
type SignatureState struct {
	Source *MovementFile  `json:"source"`
	Target *MovementFile  `json:"target"`
	Extras []MovementFile `json:"extras"`
}

// DualSigned reports whether both roles have a signature.
func (s SignatureState) DualSigned() bool {
	return s.Source != nil && s.Target != nil
}

// For returns the current signature of role.
func (s SignatureState) For(role Role) *MovementFile {
	switch role {
	case RoleSource:
		return s.Source
	case RoleTarget:
		return s.Target
	}
	return nil
}

// NewSignatureState derives the signature state from a movement's files.
// Non-signature files are ignored.
func NewSignatureState(files []MovementFile) SignatureState {
	sigs := make([]MovementFile, 0, len(files))
	for _, f := range files {
		if f.Kind == FileSignature {
			sigs = append(sigs, f)
		}
	}
	sort.SliceStable(sigs, func(i, j int) bool {
		if !sigs[i].UploadedAt.Equal(sigs[j].UploadedAt) {
			return sigs[i].UploadedAt.After(sigs[j].UploadedAt)
		}
		return sigs[i].ID > sigs[j].ID
	})

	state := SignatureState{Extras: []MovementFile{}}
	for i := range sigs {
		f := sigs[i]
		label, err := DecodeSignatureLabel(f.Label)
		switch {
		case err == nil && label.Role == RoleSource && state.Source == nil:
			state.Source = &f
		case err == nil && label.Role == RoleTarget && state.Target == nil:
			state.Target = &f
		default:
			state.Extras = append(state.Extras, f)
		}
	}
	return state
}
