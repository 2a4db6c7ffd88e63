package patients

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"clinic-sync/core/source"
	"clinic-sync/core/store"
)

// ErrUnresolvable is returned when every identity source failed for an
// appointment, including provisioning.
var ErrUnresolvable = errors.New("patients: appointment carries no usable patient identity")

// codeFloor is where code generation starts counting when the registry
// holds no numeric codes yet.
const codeFloor = 1000000

// Archive is the subset of the corpus scanner the resolver needs.
type Archive interface {
	CodeByInsuranceNumber(ctx context.Context, insuranceNumber string) (string, bool, error)
	CodeBySurnameAndBirthDate(ctx context.Context, surname, birthDateDDMMYYYY string) (string, bool, error)
}

// Clock supplies the wall clock for the fallback code generator.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Resolver resolves appointment patients against the Store and the offline
// archive. Create one per run; the cache is run-scoped.
type Resolver struct {
	store   store.Client
	archive Archive
	log     *zap.Logger
	clock   Clock

	cache map[string]resolution
}

type resolution struct {
	identity Identity
	method   Method
}

// NewResolver creates a run-scoped resolver.
func NewResolver(storeClient store.Client, archive Archive, log *zap.Logger) *Resolver {
	return &Resolver{
		store:   storeClient,
		archive: archive,
		log:     log,
		clock:   systemClock{},
		cache:   make(map[string]resolution),
	}
}

// Resolve finds or provisions the Store patient for an appointment.
func (r *Resolver) Resolve(ctx context.Context, appt source.Appointment) (Identity, Method, error) {
	key := cacheKey(appt)
	if key != "" {
		if res, ok := r.cache[key]; ok {
			return res.identity, res.method, nil
		}
	}

	identity, method, err := r.resolve(ctx, appt)
	if err != nil {
		return Identity{}, "", err
	}
	if key != "" {
		r.cache[key] = resolution{identity: identity, method: method}
	}
	return identity, method, nil
}

func (r *Resolver) resolve(ctx context.Context, appt source.Appointment) (Identity, Method, error) {
	// A code the appointment or the archive already knows travels into
	// provisioning so the new row keeps the established identifier.
	candidateCode := ""

	// 1. Strong code straight against the Store.
	if appt.PatientCode != "" {
		p, err := r.lookupCode(ctx, appt.PatientCode)
		if err != nil {
			return Identity{}, "", err
		}
		if p != nil {
			return Identity{PatientID: p.PatientID, Code: p.Code}, MethodStrong, nil
		}
		candidateCode = appt.PatientCode
	}

	// 2. Insurance number through the offline archive.
	if appt.InsuranceNumber != "" {
		code, found, err := r.archive.CodeByInsuranceNumber(ctx, appt.InsuranceNumber)
		if err != nil {
			return Identity{}, "", err
		}
		if found {
			p, err := r.lookupCode(ctx, code)
			if err != nil {
				return Identity{}, "", err
			}
			if p != nil {
				return Identity{PatientID: p.PatientID, Code: p.Code}, MethodSecondary, nil
			}
			r.log.Info("archive knows code but Store does not, will provision",
				zap.String("patient_code", code))
			candidateCode = code
		}
	}

	// 3. Surname and birth date through the offline archive.
	birth, haveBirth := parseBirthDate(appt.BirthDate)
	if appt.Surname != "" && haveBirth {
		code, found, err := r.archive.CodeBySurnameAndBirthDate(ctx, appt.Surname, birth.Format("02012006"))
		if err != nil {
			return Identity{}, "", err
		}
		if found {
			p, err := r.lookupCode(ctx, code)
			if err != nil {
				return Identity{}, "", err
			}
			if p != nil {
				return Identity{PatientID: p.PatientID, Code: p.Code}, MethodNameBirth, nil
			}
			candidateCode = code
		}
	}

	// 4. Provision a new patient row.
	if appt.Surname == "" || appt.GivenName == "" || !haveBirth {
		return Identity{}, "", fmt.Errorf("%w (appointment %d)", ErrUnresolvable, appt.ID)
	}
	identity, err := r.provision(ctx, appt, birth, candidateCode)
	if err != nil {
		return Identity{}, "", err
	}
	return identity, MethodNew, nil
}

// provision creates a patient row, re-checking the Store by name and birth
// date first. Skipping that re-check would duplicate every patient who has
// no insurance number on file.
func (r *Resolver) provision(ctx context.Context, appt source.Appointment, birth time.Time, candidateCode string) (Identity, error) {
	birthStore := store.FormatDate(birth)

	existing, err := r.store.QueryPatientByName(ctx, appt.Surname, appt.GivenName, birthStore)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Identity{}, err
	}
	if existing != nil {
		r.log.Info("patient already in Store, reusing",
			zap.String("patient_code", existing.Code),
			zap.Int("patient_id", existing.PatientID))
		return Identity{PatientID: existing.PatientID, Code: existing.Code}, nil
	}

	code := candidateCode
	if code == "" {
		code = r.nextCode(ctx)
	}

	err = r.store.InsertPatient(ctx, store.NewPatient{
		Code:            code,
		Surname:         appt.Surname,
		GivenName:       appt.GivenName,
		BirthDate:       birthStore,
		InsuranceNumber: appt.InsuranceNumber,
	})
	if err != nil {
		return Identity{}, fmt.Errorf("patients: provision %s: %w", appt.Surname, err)
	}

	created, err := r.store.QueryPatientByCode(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("patients: read back provisioned patient %s: %w", code, err)
	}

	r.log.Info("new patient provisioned",
		zap.String("patient_code", code),
		zap.Int("patient_id", created.PatientID))
	return Identity{PatientID: created.PatientID, Code: code}, nil
}

// nextCode synthesizes a new strong code: highest existing numeric code plus
// one, or a date-derived fallback when the registry cannot be queried.
func (r *Resolver) nextCode(ctx context.Context) string {
	maxCode, err := r.store.MaxPatientCode(ctx)
	if err != nil {
		r.log.Warn("cannot query highest patient code, using date fallback", zap.Error(err))
		return dateFallbackCode(r.clock.Now())
	}
	if maxCode < codeFloor {
		maxCode = codeFloor
	}
	return strconv.Itoa(maxCode + 1)
}

func dateFallbackCode(now time.Time) string {
	digits := now.Format("20060102")
	return digits[len(digits)-7:]
}

// lookupCode normalizes the not-found case to a nil patient.
func (r *Resolver) lookupCode(ctx context.Context, code string) (*store.Patient, error) {
	p, err := r.store.QueryPatientByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func parseBirthDate(s string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func cacheKey(appt source.Appointment) string {
	switch {
	case appt.PatientCode != "":
		return "code|" + appt.PatientCode
	case appt.InsuranceNumber != "":
		return "kvnr|" + appt.InsuranceNumber
	case appt.Surname != "" && appt.BirthDate != "":
		return "name|" + appt.Surname + "|" + appt.GivenName + "|" + appt.BirthDate
	default:
		return ""
	}
}
