package identity

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	patients PatientRepository
	dentists DentistRepository
}

func NewService(patients PatientRepository, dentists DentistRepository) *Service {
	return &Service{patients: patients, dentists: dentists}
}

// -- Patient --

func (s *Service) validatePatient(p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if p.Email != nil {
		if _, err := mail.ParseAddress(*p.Email); err != nil {
			return fmt.Errorf("invalid email: %s", *p.Email)
		}
	}
	if p.DateOfBirth != nil && p.DateOfBirth.After(time.Now()) {
		return fmt.Errorf("date_of_birth cannot be in the future")
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := s.validatePatient(p); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := s.validatePatient(p); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) SearchPatients(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, params, limit, offset)
}

// -- Dentist --

func (s *Service) CreateDentist(ctx context.Context, d *Dentist) error {
	if d.FirstName == "" || d.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if d.Email != nil {
		if _, err := mail.ParseAddress(*d.Email); err != nil {
			return fmt.Errorf("invalid email: %s", *d.Email)
		}
	}
	return s.dentists.Create(ctx, d)
}

func (s *Service) GetDentist(ctx context.Context, id uuid.UUID) (*Dentist, error) {
	return s.dentists.GetByID(ctx, id)
}

func (s *Service) ListDentists(ctx context.Context, limit, offset int) ([]*Dentist, int, error) {
	return s.dentists.List(ctx, limit, offset)
}

// LinkUser attaches an auth user to a dentist. An empty userID unlinks.
func (s *Service) LinkUser(ctx context.Context, dentistID uuid.UUID, userID string) error {
	return s.dentists.SetUserID(ctx, dentistID, strPtr(userID))
}

// LinkedUserID returns the auth user linked to a dentist, or "" when the
// dentist has none.
func (s *Service) LinkedUserID(ctx context.Context, dentistID uuid.UUID) (string, error) {
	d, err := s.dentists.GetByID(ctx, dentistID)
	if err != nil {
		return "", err
	}
	return strVal(d.UserID), nil
}

// DentistForUser resolves the dentist record of an auth user.
func (s *Service) DentistForUser(ctx context.Context, userID string) (*Dentist, error) {
	return s.dentists.GetByUserID(ctx, userID)
}
