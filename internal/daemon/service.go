// Package daemon is the application root: it owns the identity and license
// managers, applies observability, and hands a ready service to the RPC
// transport. Managers are explicit objects wired here, not process globals.
package daemon

import (
	"errors"
	"log/slog"

	"usenet-sync/go-core/internal/identity"
	"usenet-sync/go-core/internal/license"
	"usenet-sync/go-core/internal/metrics"
)

// Service is the command surface the desktop shell calls. Every method is
// synchronous and safe for concurrent use; serialization happens inside
// the managers.
type Service struct {
	ids    *identity.Manager
	lics   *license.Manager
	stats  *metrics.Metrics
	logger *slog.Logger
}

func NewService(ids *identity.Manager, lics *license.Manager, stats *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ids: ids, lics: lics, stats: stats, logger: logger}
}

func (s *Service) InitializeIdentity() (identity.Identity, bool, error) {
	id, created, err := s.ids.Initialize()
	if err != nil {
		s.observeStoreError(err)
		return identity.Identity{}, false, err
	}
	if created {
		s.logger.Info("identity created", "user_id", id.UserID)
	}
	return id, created, nil
}

func (s *Service) CurrentIdentity() (identity.Identity, error) {
	id, err := s.ids.Current()
	if err != nil {
		s.observeStoreError(err)
	}
	return id, err
}

func (s *Service) ExportPublicIdentity() (string, error) {
	id, err := s.ids.Current()
	if err != nil {
		return "", err
	}
	return s.ids.ExportPublic(id)
}

func (s *Service) CreateProof() (identity.Proof, error) {
	id, err := s.ids.Current()
	if err != nil {
		return identity.Proof{}, err
	}
	return s.ids.CreateProof(id)
}

// DestroyIdentity is irreversible; the shell must confirm with the user
// before calling.
func (s *Service) DestroyIdentity() error {
	if err := s.ids.Destroy(); err != nil {
		s.observeStoreError(err)
		return err
	}
	s.logger.Warn("identity destroyed; no recovery exists")
	return nil
}

func (s *Service) ActivateTrial() (license.License, error) {
	lic, err := s.lics.ActivateTrial()
	s.stats.Activations.WithLabelValues(string(license.TypeTrial), outcome(err)).Inc()
	if err != nil {
		s.observeStoreError(err)
		s.logger.Info("trial activation refused", "reason_err", err.Error())
		return license.License{}, err
	}
	s.logger.Info("trial activated", "license_id", lic.LicenseID, "user_id", lic.UserID)
	return lic, nil
}

func (s *Service) ActivateFull(token string) (license.License, error) {
	lic, err := s.lics.ActivateFull(token)
	s.stats.Activations.WithLabelValues(string(license.TypeFull), outcome(err)).Inc()
	if err != nil {
		s.observeStoreError(err)
		s.logger.Info("full activation refused", "reason_err", err.Error())
		return license.License{}, err
	}
	s.logger.Info("full license activated", "license_id", lic.LicenseID, "user_id", lic.UserID)
	return lic, nil
}

// CheckLicense is the one entitlement gate for the rest of the
// application. Deliberately logs and reports nothing about why a
// validation failed.
func (s *Service) CheckLicense() (bool, *license.License) {
	valid, lic := s.lics.Validate()
	s.stats.Validations.WithLabelValues(validity(valid)).Inc()
	return valid, lic
}

func (s *Service) DeactivateLicense() error {
	if err := s.lics.Deactivate(); err != nil {
		s.observeStoreError(err)
		return err
	}
	s.logger.Info("license deactivated")
	return nil
}

func (s *Service) GenerateLicenseKey(typ license.Type, durationDays *int64, maxActivations uint32) (string, error) {
	return license.GenerateKey(typ, durationDays, maxActivations)
}

// RemainingDays exposes the expiry countdown for status displays.
func (s *Service) RemainingDays(lic license.License) (int64, bool) {
	return s.lics.RemainingDays(lic)
}

func (s *Service) observeStoreError(err error) {
	if errors.Is(err, identity.ErrStore) || errors.Is(err, license.ErrStore) {
		s.stats.StoreErrors.Inc()
	}
}

func outcome(err error) string {
	if err != nil {
		return "refused"
	}
	return "ok"
}

func validity(valid bool) string {
	if valid {
		return "valid"
	}
	return "invalid"
}
