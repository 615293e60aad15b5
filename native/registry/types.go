package registry

import (
	"errors"
	"strings"

	"novalink/core/types"
)

var (
	// ErrNotFound marks lookups for unregistered tutor addresses.
	ErrNotFound = errors.New("registry: tutor not found")
	// ErrAlreadyRegistered marks re-registration attempts for an address.
	ErrAlreadyRegistered = errors.New("registry: tutor already registered")
)

// TutorProfile describes a tutor listed on the marketplace. Credentials are
// not stored inline; the profile carries the content hash under which the
// credential bundle lives in the credential store.
type TutorProfile struct {
	Address         string      `json:"address"`
	Name            string      `json:"name"`
	Subjects        []string    `json:"subjects"`
	HourlyRate      types.Money `json:"hourlyRate"`
	CredentialsHash string      `json:"credentialsHash,omitempty"`
	RegisteredAt    int64       `json:"registeredAt"`
}

// Validate ensures the profile payload is well formed.
func (p *TutorProfile) Validate() error {
	if p == nil {
		return errors.New("registry: nil profile")
	}
	if strings.TrimSpace(p.Address) == "" {
		return errors.New("registry: address required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("registry: name required")
	}
	if len(p.Subjects) == 0 {
		return errors.New("registry: at least one subject required")
	}
	for _, subject := range p.Subjects {
		if strings.TrimSpace(subject) == "" {
			return errors.New("registry: empty subject")
		}
	}
	if !p.HourlyRate.IsPositive() {
		return errors.New("registry: hourly rate must be positive")
	}
	return nil
}

// Clone returns a deep copy of the profile.
func (p *TutorProfile) Clone() *TutorProfile {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Subjects = append([]string(nil), p.Subjects...)
	clone.HourlyRate = p.HourlyRate.Clone()
	return &clone
}
