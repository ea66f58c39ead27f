package datastore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/fieldops/regsync/pkg/registration"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RegistrationRepo reads and writes the remote registrations collection.
type RegistrationRepo struct {
	store  Store
	fields RegistrationFields
	now    func() time.Time
}

// NewRegistrationRepo binds the repository to a store. Zero fields fall back
// to the defaults.
func NewRegistrationRepo(store Store, fields RegistrationFields) *RegistrationRepo {
	if fields == (RegistrationFields{}) {
		fields = DefaultRegistrationFields()
	}
	return &RegistrationRepo{store: store, fields: fields, now: time.Now}
}

// Create inserts a record for customer with the default pending status.
// localID links the record to the queue entry that produced it.
func (r *RegistrationRepo) Create(ctx context.Context, agentID, localID string, customer registration.CustomerData) (*registration.RemoteRegistration, error) {
	f := r.fields
	row := map[string]any{
		f.AgentID:          agentID,
		f.FirstName:        customer.FirstName,
		f.LastName:         customer.LastName,
		f.PrimaryPhone:     customer.PrimaryPhone,
		f.PackageCode:      customer.PackageCode,
		f.InstallationTown: customer.InstallationTown,
		f.VisitDate:        customer.VisitDate,
		f.VisitTime:        customer.VisitTime,
		f.Status:           registration.RemoteStatusPending,
		f.CreatedAt:        r.now().UTC(),
	}
	putOptional(row, f.LocalID, localID)
	putOptional(row, f.IDNumber, customer.IDNumber)
	putOptional(row, f.AlternatePhone, customer.AlternatePhone)
	putOptional(row, f.Email, customer.Email)
	putOptional(row, f.InstallationLocation, customer.InstallationLocation)

	rec, err := r.store.Insert(ctx, Registrations, row)
	if err != nil {
		return nil, errors.Wrap(err, "create registration")
	}
	if rec.Fields == nil {
		rec.Fields = row
	}
	out := r.decode(rec)
	log.Info().Str("registration_id", out.ID).Str("agent_id", agentID).
		Str("local_id", localID).Msg("remote registration created")
	return &out, nil
}

// Get returns the record or nil when it does not exist.
func (r *RegistrationRepo) Get(ctx context.Context, id string) (*registration.RemoteRegistration, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	recs, err := r.store.Select(ctx, Registrations, Filter{IDs: []string{id}, Limit: 1})
	if err != nil {
		return nil, errors.Wrapf(err, "get registration %s", id)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	out := r.decode(recs[0])
	return &out, nil
}

// FindByLocalID returns the record produced from the given queue entry, or
// nil when none exists.
func (r *RegistrationRepo) FindByLocalID(ctx context.Context, localID string) (*registration.RemoteRegistration, error) {
	if strings.TrimSpace(localID) == "" || r.fields.LocalID == "" {
		return nil, nil
	}
	recs, err := r.store.Select(ctx, Registrations, Filter{
		Equals: map[string]string{r.fields.LocalID: localID},
		Limit:  1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "find registration by local id %s", localID)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	out := r.decode(recs[0])
	return &out, nil
}

// StampFormsResponse writes the response id and submission time in one
// update. A write that changes nothing is reported as ErrNoRowsAffected.
func (r *RegistrationRepo) StampFormsResponse(ctx context.Context, id, responseID string, at time.Time) error {
	if strings.TrimSpace(responseID) == "" {
		return errors.New("stamp forms response: empty response id")
	}
	if at.IsZero() {
		at = r.now()
	}
	affected, err := r.store.Update(ctx, Registrations, id, map[string]any{
		r.fields.FormsResponseID:  responseID,
		r.fields.FormsSubmittedAt: at.UTC(),
	})
	if err != nil {
		return errors.Wrapf(err, "stamp forms response on %s", id)
	}
	if affected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// ListUnsubmitted returns the agent's records without a forms response id,
// oldest first.
func (r *RegistrationRepo) ListUnsubmitted(ctx context.Context, agentID string) ([]registration.RemoteRegistration, error) {
	recs, err := r.store.Select(ctx, Registrations, r.unsubmittedFilter(agentID))
	if err != nil {
		return nil, errors.Wrap(err, "list unsubmitted registrations")
	}
	out := make([]registration.RemoteRegistration, 0, len(recs))
	for _, rec := range recs {
		out = append(out, r.decode(rec))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CountUnsubmitted counts the agent's records without a forms response id.
func (r *RegistrationRepo) CountUnsubmitted(ctx context.Context, agentID string) (int, error) {
	n, err := r.store.Count(ctx, Registrations, r.unsubmittedFilter(agentID))
	return n, errors.Wrap(err, "count unsubmitted registrations")
}

func (r *RegistrationRepo) unsubmittedFilter(agentID string) Filter {
	filter := Filter{Empty: []string{r.fields.FormsResponseID}}
	if id := strings.TrimSpace(agentID); id != "" {
		filter.Equals = map[string]string{r.fields.AgentID: id}
	}
	return filter
}

func (r *RegistrationRepo) decode(rec Record) registration.RemoteRegistration {
	f := r.fields
	get := func(name string) string {
		if name == "" {
			return ""
		}
		return StringValue(rec.Fields[name])
	}
	out := registration.RemoteRegistration{
		ID:      rec.ID,
		AgentID: get(f.AgentID),
		LocalID: get(f.LocalID),
		Customer: registration.CustomerData{
			FirstName:            get(f.FirstName),
			LastName:             get(f.LastName),
			IDNumber:             get(f.IDNumber),
			PrimaryPhone:         get(f.PrimaryPhone),
			AlternatePhone:       get(f.AlternatePhone),
			Email:                get(f.Email),
			PackageCode:          get(f.PackageCode),
			InstallationTown:     get(f.InstallationTown),
			InstallationLocation: get(f.InstallationLocation),
			VisitDate:            get(f.VisitDate),
			VisitTime:            get(f.VisitTime),
		},
		Status:          get(f.Status),
		FormsResponseID: get(f.FormsResponseID),
	}
	if out.Status == "" {
		out.Status = registration.RemoteStatusPending
	}
	if ts, ok := TimeValue(rec.Fields[f.FormsSubmittedAt]); ok {
		out.FormsSubmittedAt = &ts
	}
	if ts, ok := TimeValue(rec.Fields[f.CreatedAt]); ok {
		out.CreatedAt = ts
	}
	return out
}

func putOptional(dst map[string]any, column, value string) {
	if column == "" || strings.TrimSpace(value) == "" {
		return
	}
	dst[column] = value
}
