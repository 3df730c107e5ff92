package catalog

import "strings"

// Wire shapes as returned by the catalog endpoints. Every field is optional and
// several carry alternate spellings depending on which backend version
// produced the payload.

type APIBrandCategory struct {
	ID          FlexInt    `json:"id"`
	Name        string     `json:"name"`
	Slug        FlexString `json:"slug,omitempty"`
	Description FlexString `json:"description,omitempty"`
}

type APIBrand struct {
	ID           FlexInt           `json:"id"`
	Name         string            `json:"name"`
	Slug         FlexString        `json:"slug,omitempty"`
	CategoryID   FlexInt           `json:"category_id"`
	Category     *APIBrandCategory `json:"category,omitempty"`
	CategoryName FlexString        `json:"category_name,omitempty"`
	Description  FlexString        `json:"description,omitempty"`
}

type APIProduct struct {
	ID         FlexInt    `json:"id"`
	Name       string     `json:"name"`
	Slug       FlexString `json:"slug,omitempty"`
	BrandID    FlexInt    `json:"brand_id"`
	CategoryID FlexInt    `json:"category_id"`
	Type       FlexString `json:"type,omitempty"`
	Status     FlexString `json:"status,omitempty"`
	Brand      *APIBrand  `json:"brand,omitempty"`

	Certifications       []*APICertification `json:"certifications,omitempty"`
	Certification        *APICertification   `json:"certification,omitempty"`
	LatestCertification  *APICertification   `json:"latest_certification,omitempty"`
	CurrentCertification *APICertification   `json:"current_certification,omitempty"`

	CertificateNumber    FlexString `json:"certificate_number,omitempty"`
	CertificateNumberAlt FlexString `json:"certificateNumber,omitempty"`
	CertificateStatus    FlexString `json:"certificate_status,omitempty"`
	CertificateStatusAlt FlexString `json:"certificateStatus,omitempty"`
	CertificateType      FlexString `json:"certificate_type,omitempty"`
	CertificateTypeAlt   FlexString `json:"certificateType,omitempty"`
	IssuedAt             FlexString `json:"issued_at,omitempty"`
	IssuedAtAlt          FlexString `json:"issuedAt,omitempty"`
	ExpiredAt            FlexString `json:"expired_at,omitempty"`
	ExpiresAt            FlexString `json:"expires_at,omitempty"`
	ExpiresAtAlt         FlexString `json:"expiresAt,omitempty"`
	Notes                FlexString `json:"notes,omitempty"`
	Description          FlexString `json:"description,omitempty"`

	// Listing attributes used by the public product view.
	Rating    float64    `json:"rating,omitempty"`
	CreatedAt FlexString `json:"created_at,omitempty"`
	Image     FlexString `json:"image,omitempty"`
}

type APICertification struct {
	ID                FlexInt    `json:"id"`
	ProductID         FlexInt    `json:"product_id"`
	CertificateNumber FlexString `json:"certificate_number"`
	Type              FlexString `json:"type,omitempty"`
	Status            FlexString `json:"status,omitempty"`
	IssuedAt          FlexString `json:"issued_at,omitempty"`
	IssuedAtAlt       FlexString `json:"issuedAt,omitempty"`
	ExpiredAt         FlexString `json:"expired_at,omitempty"`
	ExpiresAt         FlexString `json:"expires_at,omitempty"`
	ExpiresAtAlt      FlexString `json:"expiresAt,omitempty"`
	Notes             FlexString `json:"notes,omitempty"`
	Description       FlexString `json:"description,omitempty"`
}

// Identified reports whether the payload names a record, by id or number.
// A null or empty response body decodes to an unidentified value.
func (c *APICertification) Identified() bool {
	return c.ID.Valid || strings.TrimSpace(string(c.CertificateNumber)) != ""
}

func (c *APICertification) issued() string {
	if c == nil {
		return ""
	}
	return first(string(c.IssuedAt), string(c.IssuedAtAlt))
}

func (c *APICertification) expires() string {
	if c == nil {
		return ""
	}
	return first(string(c.ExpiredAt), string(c.ExpiresAt), string(c.ExpiresAtAlt))
}

func (c *APICertification) notes() string {
	if c == nil {
		return ""
	}
	return first(string(c.Notes), string(c.Description))
}

func (c *APICertification) number() string {
	if c == nil {
		return ""
	}
	return string(c.CertificateNumber)
}

// Canonical entities. Cross references are plain ids (0 means none) resolved
// through the owning store.

type BrandCategory struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
}

type Brand struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	CategoryID   int64  `json:"categoryId,omitempty"`
	CategoryName string `json:"categoryName,omitempty"`
	Description  string `json:"description,omitempty"`
}

type Product struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Slug       string  `json:"slug"`
	BrandID    int64   `json:"brandId,omitempty"`
	CategoryID int64   `json:"categoryId,omitempty"`
	Type       string  `json:"type,omitempty"`
	Status     string  `json:"status,omitempty"`
	Rating     float64 `json:"rating,omitempty"`
	CreatedAt  string  `json:"createdAt,omitempty"`
	Image      string  `json:"image,omitempty"`
}

type Certification struct {
	ID                CertificationID `json:"id"`
	ProductID         int64           `json:"productId"`
	CertificateNumber string          `json:"certificateNumber"`
	Type              string          `json:"type"`
	Status            string          `json:"status"`
	IssuedAt          string          `json:"issuedAt,omitempty"`
	ExpiresAt         string          `json:"expiresAt,omitempty"`
	Notes             string          `json:"notes,omitempty"`
}

// EnrichedCertification is a read-only join of a certification with its
// product, brand and category display names.
type EnrichedCertification struct {
	Certification
	ProductName  string `json:"productName"`
	BrandID      int64  `json:"brandId,omitempty"`
	BrandName    string `json:"brandName"`
	CategoryID   int64  `json:"categoryId,omitempty"`
	CategoryName string `json:"categoryName"`
	TypeLabel    string `json:"typeLabel"`
	StatusLabel  string `json:"statusLabel"`
}

// CertificationBody is the request body for product-certifications writes.
type CertificationBody struct {
	ProductID         int64   `json:"product_id"`
	CertificateNumber string  `json:"certificate_number"`
	Status            string  `json:"status"`
	Type              string  `json:"type"`
	IssuedAt          *string `json:"issued_at"`
	ExpiresAt         *string `json:"expires_at"`
	Notes             *string `json:"notes"`
}
