package models

import (
	"fmt"
	"time"
)

// MaxPhotos is the number of shared photo slots on a visit
const MaxPhotos = 4

// Admin is a staff account allowed to use the console
type Admin struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Customer is the karte owner
type Customer struct {
	ID            string     `json:"id"`
	DisplayName   string     `json:"display_name"`
	LastVisitAt   *time.Time `json:"last_visit_at,omitempty"`
	LatestVisitID *string    `json:"latest_visit_id,omitempty"`
	LineUserID    *string    `json:"-"`
	Linked        bool       `json:"linked"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// StaffOnly holds data that is never shown to the customer
type StaffOnly struct {
	StaffPhotoPath *string `json:"staff_photo_path,omitempty"`
}

// Visit is a single treatment record of a customer
type Visit struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customer_id"`
	VisitAt     time.Time `json:"visit_at"`
	Note        string    `json:"note"`
	StaffName   string    `json:"staff_name"`
	LineConsent string    `json:"line_consent"`
	Menu        string    `json:"menu"`
	Style       string    `json:"style"`
	SideType    string    `json:"side_type"`
	SideMm      string    `json:"side_mm"`
	BackType    string    `json:"back_type"`
	BackMm      string    `json:"back_mm"`
	Styling     string    `json:"styling"`
	Other       string    `json:"other"`

	// Pre-migration free text lengths, kept for old records.
	LengthSide string `json:"length_side,omitempty"`
	LengthBack string `json:"length_back,omitempty"`

	Photos    map[string]string `json:"photos"`
	StaffOnly StaffOnly         `json:"staff_only"`

	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

// PhotoPaths returns the shared photo paths in slot order
func (v *Visit) PhotoPaths() []string {
	var paths []string
	for slot := 1; slot <= MaxPhotos; slot++ {
		if p := v.Photos[PhotoKey(slot)]; p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// AllStoragePaths returns shared and staff-only paths
func (v *Visit) AllStoragePaths() []string {
	paths := v.PhotoPaths()
	if v.StaffOnly.StaffPhotoPath != nil && *v.StaffOnly.StaffPhotoPath != "" {
		paths = append(paths, *v.StaffOnly.StaffPhotoPath)
	}
	return paths
}

// PublicVisit is what a linked customer can see of a visit
type PublicVisit struct {
	ID         string            `json:"id"`
	VisitAt    time.Time         `json:"visit_at"`
	Note       string            `json:"note"`
	Photos     map[string]string `json:"photos"`
	PhotoCount int               `json:"photo_count"`
}

// Public strips everything staff-only from a visit
func (v *Visit) Public() *PublicVisit {
	photos := make(map[string]string, MaxPhotos)
	for slot := 1; slot <= MaxPhotos; slot++ {
		if p := v.Photos[PhotoKey(slot)]; p != "" {
			photos[PhotoKey(slot)] = p
		}
	}
	return &PublicVisit{
		ID:         v.ID,
		VisitAt:    v.VisitAt,
		Note:       v.Note,
		Photos:     photos,
		PhotoCount: len(photos),
	}
}

// LinkToken is a one-time code that links a LINE user to a customer
type LinkToken struct {
	Code             string     `json:"token"`
	CustomerID       string     `json:"customer_id"`
	ExpiresAt        time.Time  `json:"expires_at"`
	UsedAt           *time.Time `json:"-"`
	UsedByLineUserID *string    `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
}

// PhotoKey is the photos map key for a shared slot (1-based)
func PhotoKey(slot int) string {
	return fmt.Sprintf("after%dPath", slot)
}

// PhotoPath is the object storage path of a shared slot
func PhotoPath(customerID, visitID string, slot int) string {
	return fmt.Sprintf("customers/%s/visits/%s/after_%d.jpg", customerID, visitID, slot)
}

// StaffPhotoPath is the object storage path of the staff-only photo
func StaffPhotoPath(customerID, visitID string) string {
	return fmt.Sprintf("customers/%s/visits/%s/staff_only.jpg", customerID, visitID)
}
