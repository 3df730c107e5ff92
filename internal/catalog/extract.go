package catalog

import (
	"fmt"
	"strings"
)

// Strategy extracts certification candidates from one embedding shape of a
// product payload.
type Strategy func(p APIProduct, syn *Synthesizer) []Certification

// Strategies lists the extraction shapes in priority order. Earlier strategies
// win de-duplication, so their auxiliary fields survive.
var Strategies = []Strategy{
	FromArray,
	FromNested,
	FromFlattened,
}

// CollectCertifications runs Strategies over p, de-duplicates on
// (product, number, type) keeping the first occurrence, and falls back to a
// single placeholder when nothing usable was found.
func CollectCertifications(p APIProduct, syn *Synthesizer) []Certification {
	return Collect(p, syn, Strategies...)
}

// Collect is CollectCertifications with an explicit strategy list.
func Collect(p APIProduct, syn *Synthesizer, strategies ...Strategy) []Certification {
	if syn == nil {
		syn = &Synthesizer{}
	}
	var out []Certification
	seen := make(map[string]struct{})
	for _, strategy := range strategies {
		for _, c := range strategy(p, syn) {
			key := fmt.Sprintf("%d::%s::%s", c.ProductID, c.CertificateNumber, c.Type)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = append(out, Placeholder(p, syn))
	}
	return out
}

// FromArray reads the certifications array, skipping entries without a number.
func FromArray(p APIProduct, syn *Synthesizer) []Certification {
	var out []Certification
	for _, c := range p.Certifications {
		if c == nil || strings.TrimSpace(c.number()) == "" {
			continue
		}
		out = append(out, normalizeCertification(c, p.ID.Value, syn))
	}
	return out
}

// FromNested reads the single embedded certification object.
func FromNested(p APIProduct, syn *Synthesizer) []Certification {
	single := p.single()
	if single == nil || strings.TrimSpace(single.number()) == "" {
		return nil
	}
	return []Certification{normalizeCertification(single, p.ID.Value, syn)}
}

// FromFlattened reads certificate fields placed directly on the product. The
// nested object, when present, fills the gaps.
func FromFlattened(p APIProduct, syn *Synthesizer) []Certification {
	single := p.single()
	number := strings.TrimSpace(first(string(p.CertificateNumber), string(p.CertificateNumberAlt), single.number()))
	if number == "" {
		return nil
	}
	return []Certification{{
		ID:                syn.ID(p.ID.Value, number),
		ProductID:         p.ID.Value,
		CertificateNumber: number,
		Type:              strings.ToLower(first(string(p.CertificateType), string(p.CertificateTypeAlt), string(p.Type), DefaultType)),
		Status:            strings.ToLower(first(string(p.CertificateStatus), string(p.CertificateStatusAlt), string(p.Status), DefaultStatus)),
		IssuedAt:          first(p.issued(), single.issued()),
		ExpiresAt:         first(p.expires(), single.expires()),
		Notes:             first(p.notes(), single.notes()),
	}}
}

// Placeholder stands in for a product that carries no certificate data. Its
// number is the product slug, else name, else product-<id>.
func Placeholder(p APIProduct, syn *Synthesizer) Certification {
	number := first(string(p.Slug), p.Name, fmt.Sprintf("product-%d", p.ID.Value))
	return Certification{
		ID:                syn.ID(p.ID.Value, number),
		ProductID:         p.ID.Value,
		CertificateNumber: number,
		Type:              strings.ToLower(first(string(p.Type), DefaultType)),
		Status:            strings.ToLower(first(string(p.Status), DefaultStatus)),
		IssuedAt:          p.issued(),
		ExpiresAt:         p.expires(),
		Notes:             p.notes(),
	}
}

// single picks latest > current > certification.
func (p APIProduct) single() *APICertification {
	switch {
	case p.LatestCertification != nil:
		return p.LatestCertification
	case p.CurrentCertification != nil:
		return p.CurrentCertification
	default:
		return p.Certification
	}
}

func (p APIProduct) issued() string {
	return first(string(p.IssuedAt), string(p.IssuedAtAlt))
}

func (p APIProduct) expires() string {
	return first(string(p.ExpiredAt), string(p.ExpiresAt), string(p.ExpiresAtAlt))
}

func (p APIProduct) notes() string {
	return first(string(p.Notes), string(p.Description))
}
