package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CertificationID is either a server-assigned integer or a locally synthesized
// string. Synthesized ids cannot address the server.
type CertificationID struct {
	server int64
	local  string
}

// ServerID wraps a server-assigned identifier.
func ServerID(id int64) CertificationID { return CertificationID{server: id} }

// LocalID wraps a synthesized identifier.
func LocalID(id string) CertificationID { return CertificationID{local: id} }

// ParseCertificationID treats integers as server ids and anything else as
// synthesized.
func ParseCertificationID(raw string) CertificationID {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ServerID(n)
	}
	return LocalID(raw)
}

func (id CertificationID) Synthesized() bool { return id.local != "" }

// Server returns the server id; ok is false for synthesized ids.
func (id CertificationID) Server() (int64, bool) {
	if id.Synthesized() {
		return 0, false
	}
	return id.server, true
}

func (id CertificationID) IsZero() bool { return id.local == "" && id.server == 0 }

func (id CertificationID) String() string {
	if id.Synthesized() {
		return id.local
	}
	return strconv.FormatInt(id.server, 10)
}

func (id CertificationID) MarshalJSON() ([]byte, error) {
	if id.Synthesized() {
		return json.Marshal(id.local)
	}
	return []byte(strconv.FormatInt(id.server, 10)), nil
}

func (id *CertificationID) UnmarshalJSON(data []byte) error {
	var n FlexInt
	if err := n.UnmarshalJSON(data); err != nil {
		return err
	}
	if n.Valid {
		*id = ServerID(n.Value)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("certification id: %w", err)
	}
	*id = LocalID(s)
	return nil
}

// Synthesizer issues local ids for certifications the server never numbered.
// Ids derived from a certificate number are stable; the counter only backs
// entries whose number has no usable slug. Reset it once per full load.
type Synthesizer struct {
	counter int
}

// ID returns product-<id>-<slug(number)> or product-<id>-cert-<n>.
func (s *Synthesizer) ID(productID int64, number string) CertificationID {
	base := fmt.Sprintf("product-%d", productID)
	if slug := Slugify(number); slug != "" {
		return LocalID(base + "-" + slug)
	}
	s.counter++
	return LocalID(fmt.Sprintf("%s-cert-%d", base, s.counter))
}

// Reset restarts the fallback counter.
func (s *Synthesizer) Reset() { s.counter = 0 }

// Slugify lower-cases value and collapses every run of characters outside
// [a-z0-9] into a single dash.
func Slugify(value string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(value) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}
