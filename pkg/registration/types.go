// Package registration holds the value types shared by the local queue, the
// remote datastore repositories and the sync pipeline.
package registration

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a locally queued registration.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is one of the known queue states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusSynced, StatusFailed:
		return true
	}
	return false
}

// RemoteStatusPending is the domain status given to freshly created remote
// registrations. Later states (approved, installed) are owned by back office.
const RemoteStatusPending = "pending"

// CustomerData is the registration form payload captured by the agent.
type CustomerData struct {
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	IDNumber             string `json:"id_number,omitempty"`
	PrimaryPhone         string `json:"primary_phone"`
	AlternatePhone       string `json:"alternate_phone,omitempty"`
	Email                string `json:"email,omitempty"`
	PackageCode          string `json:"package_code"`
	InstallationTown     string `json:"installation_town"`
	InstallationLocation string `json:"installation_location,omitempty"`
	VisitDate            string `json:"visit_date"`
	VisitTime            string `json:"visit_time"`
}

// FullName joins first and last name.
func (c CustomerData) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// AgentData is the agent identity snapshot taken when a registration is
// captured, so a later sync never needs the agent record.
type AgentData struct {
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
}

// PendingRegistration is one entry of the local durable queue.
type PendingRegistration struct {
	ID         string       `json:"id"`
	AgentID    string       `json:"agent_id"`
	Customer   CustomerData `json:"customer_data"`
	Agent      AgentData    `json:"agent_data"`
	Status     Status       `json:"status"`
	Error      string       `json:"error,omitempty"`
	RetryCount int          `json:"retry_count"`
	RemoteID   string       `json:"remote_id,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// RemoteRegistration mirrors a row of the remote registrations collection.
type RemoteRegistration struct {
	ID               string
	AgentID          string
	LocalID          string
	Customer         CustomerData
	Status           string
	FormsResponseID  string
	FormsSubmittedAt *time.Time
	CreatedAt        time.Time
}

// Submitted reports whether the record already carries a forms response id.
func (r RemoteRegistration) Submitted() bool {
	return strings.TrimSpace(r.FormsResponseID) != ""
}

// OfflineMessage is the sole error reported when a sync is attempted without
// connectivity.
const OfflineMessage = "Device is offline"

// SyncResult summarizes one sync operation.
type SyncResult struct {
	Success bool     `json:"success"`
	Synced  int      `json:"synced"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// NewSyncResult returns an empty successful result.
func NewSyncResult() SyncResult {
	return SyncResult{Success: true, Errors: []string{}}
}

// OfflineResult is returned when connectivity is down; nothing was attempted.
func OfflineResult() SyncResult {
	return SyncResult{Success: false, Errors: []string{OfflineMessage}}
}

// AddSuccess records one synced item.
func (r *SyncResult) AddSuccess() {
	r.Synced++
}

// AddFailure records one failed item named by label.
func (r *SyncResult) AddFailure(label string, err error) {
	r.Failed++
	r.Success = false
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if strings.TrimSpace(label) == "" {
		r.Errors = append(r.Errors, msg)
		return
	}
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", label, msg))
}

// Merge folds other into r.
func (r *SyncResult) Merge(other SyncResult) {
	r.Synced += other.Synced
	r.Failed += other.Failed
	r.Success = r.Success && other.Success
	if r.Errors == nil {
		r.Errors = []string{}
	}
	r.Errors = append(r.Errors, other.Errors...)
}

// Changed reports whether any item moved in either direction.
func (r SyncResult) Changed() bool {
	return r.Synced > 0 || r.Failed > 0
}

// Summary renders the user facing one-liner.
func (r SyncResult) Summary() string {
	return fmt.Sprintf("%d synced, %d failed", r.Synced, r.Failed)
}
