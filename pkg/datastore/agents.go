package datastore

import (
	"context"
	"strings"

	"github.com/fieldops/regsync/pkg/registration"
	"github.com/pkg/errors"
)

// AgentProfile is the subset of the agent record the pipeline reads.
type AgentProfile struct {
	ID     string
	Name   string
	Mobile string
	Phone  string
}

// AgentRepo reads the remote agents collection.
type AgentRepo struct {
	store  Store
	fields AgentFields
}

// NewAgentRepo binds the repository to a store.
func NewAgentRepo(store Store, fields AgentFields) *AgentRepo {
	if fields == (AgentFields{}) {
		fields = DefaultAgentFields()
	}
	return &AgentRepo{store: store, fields: fields}
}

// Get returns the agent profile or nil when absent.
func (a *AgentRepo) Get(ctx context.Context, agentID string) (*AgentProfile, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, nil
	}
	recs, err := a.store.Select(ctx, Agents, Filter{IDs: []string{agentID}, Limit: 1})
	if err != nil {
		return nil, errors.Wrapf(err, "get agent %s", agentID)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	rec := recs[0]
	return &AgentProfile{
		ID:     rec.ID,
		Name:   StringValue(rec.Fields[a.fields.Name]),
		Mobile: StringValue(rec.Fields[a.fields.Mobile]),
		Phone:  StringValue(rec.Fields[a.fields.Phone]),
	}, nil
}

// ContactMobile returns the preferred mobile number, falling back to the
// generic phone column.
func (p *AgentProfile) ContactMobile() (string, error) {
	if p == nil {
		return "", ErrAgentPhoneNotFound
	}
	if p.Mobile != "" {
		return p.Mobile, nil
	}
	if p.Phone != "" {
		return p.Phone, nil
	}
	return "", ErrAgentPhoneNotFound
}

// Identity builds the denormalized agent snapshot used for forms submission.
func (a *AgentRepo) Identity(ctx context.Context, agentID string) (registration.AgentData, error) {
	profile, err := a.Get(ctx, agentID)
	if err != nil {
		return registration.AgentData{}, err
	}
	mobile, err := profile.ContactMobile()
	if err != nil {
		return registration.AgentData{}, err
	}
	return registration.AgentData{Name: profile.Name, Mobile: mobile}, nil
}
