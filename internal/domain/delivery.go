package domain

import "time"

type DeliveryType string

const (
	DeliveryFile DeliveryType = "FILE"
	DeliveryLink DeliveryType = "LINK"
)

// DesignerDelivery is a single artifact. Type decides which list it lives in.
type DesignerDelivery struct {
	ID          string       `json:"id"`
	Type        DeliveryType `json:"type" enum:"FILE,LINK"`
	Name        string       `json:"name"`
	URL         string       `json:"url"`
	Description string       `json:"description,omitempty"`
	StorageKey  string       `json:"storage_key,omitempty"`
	UploadedAt  time.Time    `json:"uploaded_at"`
	UploadedBy  string       `json:"uploaded_by"`
}

// DesignerDeliveries is created lazily on the first artifact.
type DesignerDeliveries struct {
	Files               []DesignerDelivery `json:"files"`
	Links               []DesignerDelivery `json:"links"`
	Notes               string             `json:"notes,omitempty"`
	Status              *DeliveryStatus    `json:"status,omitempty"`
	SubmittedAt         *time.Time         `json:"submitted_at,omitempty"`
	ClientFeedback      string             `json:"client_feedback,omitempty"`
	AdminFeedback       string             `json:"admin_feedback,omitempty"`
	ReviewedBy          string             `json:"reviewed_by,omitempty"`
	ReviewedAt          *time.Time         `json:"reviewed_at,omitempty"`
	RevisionRequestedAt *time.Time         `json:"revision_requested_at,omitempty"`
}

// Clone returns a deep copy so patches never alias stored slices.
func (d *DesignerDeliveries) Clone() *DesignerDeliveries {
	if d == nil {
		return nil
	}
	c := *d
	c.Files = append([]DesignerDelivery(nil), d.Files...)
	c.Links = append([]DesignerDelivery(nil), d.Links...)
	if d.Status != nil {
		s := *d.Status
		c.Status = &s
	}
	return &c
}

func (d *DesignerDeliveries) StatusIs(s DeliveryStatus) bool {
	return d != nil && d.Status != nil && *d.Status == s
}

func (d *DesignerDeliveries) Count() int {
	if d == nil {
		return 0
	}
	return len(d.Files) + len(d.Links)
}

// Find returns the artifact with id and whether it was found.
func (d *DesignerDeliveries) Find(id string) (DesignerDelivery, bool) {
	if d == nil {
		return DesignerDelivery{}, false
	}
	for _, f := range d.Files {
		if f.ID == id {
			return f, true
		}
	}
	for _, l := range d.Links {
		if l.ID == id {
			return l, true
		}
	}
	return DesignerDelivery{}, false
}

// Append adds the artifact to the list matching its type.
func (d *DesignerDeliveries) Append(item DesignerDelivery) {
	switch item.Type {
	case DeliveryFile:
		d.Files = append(d.Files, item)
	case DeliveryLink:
		d.Links = append(d.Links, item)
	}
}

// Remove drops the artifact with id, preserving order of the rest.
func (d *DesignerDeliveries) Remove(id string) bool {
	if d == nil {
		return false
	}
	for i, f := range d.Files {
		if f.ID == id {
			d.Files = append(d.Files[:i:i], d.Files[i+1:]...)
			return true
		}
	}
	for i, l := range d.Links {
		if l.ID == id {
			d.Links = append(d.Links[:i:i], d.Links[i+1:]...)
			return true
		}
	}
	return false
}
