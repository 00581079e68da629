package transfer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/web"
)

var formTemplate = template.Must(template.New("transfer_form.html").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).ParseFS(web.TemplatesFS(), "transfer_form.html"))

type formLine struct {
	Name      string
	SKU       string
	Quantity  int
	Direction string
	From      string
	To        string
	Reason    string
}

type formSignature struct {
	Title    string
	Image    template.URL
	Signer   string
	Sector   string
	SignedAt string
}

type formData struct {
	Reference   string
	GeneratedAt string
	Initiator   string
	Route       string
	QR          template.URL
	Lines       []formLine
	Signatures  []formSignature
	Signed      bool
}

const formTimeLayout = "2006-01-02 15:04"

// newFormData lays out the group's line items with blank signature boxes.
func newFormData(group model.MovementGroup, names model.SectorNames, initiator string, now time.Time) formData {
	d := formData{
		Reference:   reference(group),
		GeneratedAt: now.Format(formTimeLayout),
		Initiator:   initiator,
		Signatures: []formSignature{
			{Title: model.RoleSource.Title()},
			{Title: model.RoleTarget.Title()},
		},
	}

	var routes []string
	seen := map[string]bool{}
	for _, m := range group.Movements {
		from := names.Name(m.SourceSectorID, "Unassigned")
		to := names.Name(m.TargetSectorID, "-")
		d.Lines = append(d.Lines, formLine{
			Name:      m.ItemName,
			SKU:       m.ItemSKU,
			Quantity:  m.Amount,
			Direction: string(m.Direction),
			From:      from,
			To:        to,
			Reason:    m.Reason,
		})
		route := from + " -> " + to
		if !seen[route] {
			seen[route] = true
			routes = append(routes, route)
		}
	}
	d.Route = strings.Join(routes, ", ")
	return d
}

func reference(group model.MovementGroup) string {
	if rep := group.Representative(); rep != nil {
		key := group.Key
		if len(key) > 8 {
			key = key[:8]
		}
		if key == "" {
			return fmt.Sprintf("T-%d", rep.ID)
		}
		return fmt.Sprintf("T-%d-%s", rep.ID, key)
	}
	return group.Key
}

func (d formData) html() (string, error) {
	var buf bytes.Buffer
	if err := formTemplate.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("rendering transfer form: %w", err)
	}
	return buf.String(), nil
}
