// Package memory is an in-process implementation of the repository
// interfaces. Every operation runs under one mutex, so multi-step writes such
// as claim submission are atomic exactly like their Postgres counterparts.
package memory

import (
	"context"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository"
)

type staffKey struct {
	establishmentID uuid.UUID
	professionalID  uuid.UUID
}

// Store holds all entities. Use the accessor methods to get the repository
// views.
type Store struct {
	mu sync.Mutex

	establishments map[uuid.UUID]model.Establishment
	staff          map[staffKey]model.StaffAssignment
	claims         map[uuid.UUID]model.Claim
	invitations    map[string]model.Invitation
	outbox         map[uuid.UUID]model.OutboxEvent
	audit          []model.AuditLog
	legacy         []model.StaffAssignment

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		establishments: map[uuid.UUID]model.Establishment{},
		staff:          map[staffKey]model.StaffAssignment{},
		claims:         map[uuid.UUID]model.Claim{},
		invitations:    map[string]model.Invitation{},
		outbox:         map[uuid.UUID]model.OutboxEvent{},
		now:            time.Now,
	}
}

func (s *Store) Establishments() repository.EstablishmentRepository { return &establishmentRepo{s} }
func (s *Store) Staff() repository.StaffRepository                  { return &staffRepo{s} }
func (s *Store) Claims() repository.ClaimRepository                 { return &claimRepo{s} }
func (s *Store) Invitations() repository.InvitationRepository       { return &invitationRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository                { return &outboxRepo{s} }
func (s *Store) Audit() repository.AuditRepository                  { return &auditRepo{s} }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// SeedLegacyAffiliation adds a row to the legacy affiliation table that
// MigrateLegacyAffiliations copies from.
func (s *Store) SeedLegacyAffiliation(a model.StaffAssignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legacy = append(s.legacy, a)
}

// --- establishments ---

type establishmentRepo struct{ s *Store }

func (r *establishmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.Establishment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	est, ok := r.s.establishments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &est, nil
}

func matches(est *model.Establishment, f *model.EstablishmentFilter) bool {
	if f == nil {
		return true
	}
	if f.ClaimStatus != "" && est.ClaimStatus != f.ClaimStatus {
		return false
	}
	if f.Type != "" && est.Type != f.Type {
		return false
	}
	if f.Province != "" && est.Province != f.Province {
		return false
	}
	if f.City != "" && est.City != f.City {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(est.Name), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

func (r *establishmentRepo) filtered(f *model.EstablishmentFilter) []*model.Establishment {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []*model.Establishment{}
	for _, est := range r.s.establishments {
		est := est
		if matches(&est, f) {
			out = append(out, &est)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (r *establishmentRepo) List(ctx context.Context, filter *model.EstablishmentFilter) ([]*model.Establishment, int64, error) {
	if filter == nil {
		filter = &model.EstablishmentFilter{}
	}
	filter.Normalize()

	all := r.filtered(filter)
	total := int64(len(all))

	start := filter.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *establishmentRepo) Each(ctx context.Context, filter *model.EstablishmentFilter, fn func(*model.Establishment) error) error {
	for _, est := range r.filtered(filter) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(est); err != nil {
			return err
		}
	}
	return nil
}

func (r *establishmentRepo) Create(ctx context.Context, est *model.Establishment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if est.ID == uuid.Nil {
		est.ID = uuid.New()
	}
	if est.ClaimStatus == "" {
		est.ClaimStatus = model.ClaimStatusUnclaimed
	}
	est.CreatedAt = r.s.now()
	est.UpdatedAt = est.CreatedAt
	r.s.establishments[est.ID] = *est
	return nil
}

func (r *establishmentRepo) Counts(ctx context.Context) (*model.PlatformCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	counts := &model.PlatformCounts{EstablishmentsByStatus: map[model.ClaimStatus]int64{}}
	for _, est := range r.s.establishments {
		counts.EstablishmentsByStatus[est.ClaimStatus]++
	}
	for _, c := range r.s.claims {
		if c.Status == model.ClaimRequestPending {
			counts.PendingClaims++
		}
	}
	for _, a := range r.s.staff {
		if a.Status == model.StaffStatusActive {
			counts.ActiveStaff++
		}
	}
	return counts, nil
}

// --- staff ---

type staffRepo struct{ s *Store }

func (r *staffRepo) ActiveAssignments(ctx context.Context, professionalID, establishmentID uuid.UUID) ([]*model.StaffAssignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []*model.StaffAssignment{}
	if a, ok := r.s.staff[staffKey{establishmentID, professionalID}]; ok && a.Status == model.StaffStatusActive {
		out = append(out, &a)
	}
	return out, nil
}

func (r *staffRepo) Memberships(ctx context.Context, professionalID uuid.UUID) ([]*model.Membership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []*model.Membership{}
	for key, a := range r.s.staff {
		if key.professionalID != professionalID || a.Status != model.StaffStatusActive {
			continue
		}
		est, ok := r.s.establishments[key.establishmentID]
		if !ok {
			continue
		}
		out = append(out, &model.Membership{StaffAssignment: a, EstablishmentName: est.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EstablishmentName < out[j].EstablishmentName })
	return out, nil
}

func (r *staffRepo) ListByEstablishment(ctx context.Context, establishmentID uuid.UUID) ([]*model.StaffAssignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []*model.StaffAssignment{}
	for key, a := range r.s.staff {
		a := a
		if key.establishmentID == establishmentID {
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *staffRepo) Upsert(ctx context.Context, staff *model.StaffAssignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.upsertStaffLocked(staff)
	return nil
}

func (s *Store) upsertStaffLocked(staff *model.StaffAssignment) {
	key := staffKey{staff.EstablishmentID, staff.ProfessionalID}
	now := s.now()

	if existing, ok := s.staff[key]; ok {
		staff.ID = existing.ID
		staff.CreatedAt = existing.CreatedAt
		staff.Source = existing.Source
	} else {
		if staff.ID == uuid.Nil {
			staff.ID = uuid.New()
		}
		staff.CreatedAt = now
	}
	if staff.Source == "" {
		staff.Source = model.StaffSourceStaff
	}
	staff.UpdatedAt = now
	s.staff[key] = *staff
}

func (r *staffRepo) MigrateLegacyAffiliations(ctx context.Context) (*model.LegacyMigrationResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	result := &model.LegacyMigrationResult{RanAt: r.s.now()}
	for _, legacy := range r.s.legacy {
		key := staffKey{legacy.EstablishmentID, legacy.ProfessionalID}
		if _, exists := r.s.staff[key]; exists {
			result.Skipped++
			continue
		}

		a := legacy
		if !a.Role.Valid() {
			a.Role = model.StaffRoleStaff
		}
		a.IsAdmin = a.Role.Administrative()
		if a.Status == "" {
			a.Status = model.StaffStatusInactive
		}
		a.ID = uuid.New()
		a.Source = model.StaffSourceLegacyAffiliation
		a.UpdatedAt = result.RanAt
		if a.CreatedAt.IsZero() {
			a.CreatedAt = result.RanAt
		}
		r.s.staff[key] = a
		result.Copied++
	}
	return result, nil
}

// --- claims ---

type claimRepo struct{ s *Store }

func (r *claimRepo) Submit(ctx context.Context, sub *model.ClaimSubmission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	claim := sub.Claim

	var inv model.Invitation
	if len(sub.TokenHash) > 0 {
		var ok bool
		inv, ok = r.s.invitations[hex.EncodeToString(sub.TokenHash)]
		if !ok || inv.EstablishmentID != claim.EstablishmentID || !inv.Usable(sub.SubmitTime) {
			return repository.ErrInvalidToken
		}
	}

	est, ok := r.s.establishments[claim.EstablishmentID]
	if !ok {
		return repository.ErrNotFound
	}
	if !est.ClaimStatus.Claimable() {
		return repository.ErrAlreadyClaimed
	}
	for _, existing := range r.s.claims {
		if existing.EstablishmentID == claim.EstablishmentID &&
			(existing.Status == model.ClaimRequestPending || existing.Status == model.ClaimRequestApproved) {
			return repository.ErrAlreadyClaimed
		}
	}

	// All checks passed; apply every write.
	if len(sub.TokenHash) > 0 {
		usedAt, usedBy := sub.SubmitTime, claim.ClaimantID
		inv.UsedAt, inv.UsedBy = &usedAt, &usedBy
		r.s.invitations[hex.EncodeToString(sub.TokenHash)] = inv
		invitationID := inv.ID
		claim.InvitationID = &invitationID
	}

	claimantID, claimedAt := claim.ClaimantID, sub.SubmitTime
	est.ClaimStatus = model.ClaimStatusPending
	est.ClaimedBy = &claimantID
	est.ClaimedAt = &claimedAt
	est.UpdatedAt = sub.SubmitTime
	r.s.establishments[est.ID] = est

	if claim.ID == uuid.Nil {
		claim.ID = uuid.New()
	}
	claim.Status = model.ClaimRequestPending
	claim.CreatedAt = sub.SubmitTime
	r.s.claims[claim.ID] = *claim

	for hash, other := range r.s.invitations {
		if other.EstablishmentID == claim.EstablishmentID && other.UsedAt == nil {
			usedAt, usedBy := sub.SubmitTime, claim.ClaimantID
			other.UsedAt, other.UsedBy = &usedAt, &usedBy
			r.s.invitations[hash] = other
		}
	}

	if sub.Staff != nil {
		key := staffKey{sub.Staff.EstablishmentID, sub.Staff.ProfessionalID}
		if existing, ok := r.s.staff[key]; !ok || existing.Status == model.StaffStatusInactive {
			r.s.upsertStaffLocked(sub.Staff)
		}
	}
	if sub.Event != nil {
		r.s.insertEventLocked(sub.Event)
	}
	return nil
}

func (r *claimRepo) Decide(ctx context.Context, decision *model.ClaimDecision) (*model.Claim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	claim, ok := r.s.claims[decision.ClaimID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if claim.Status != model.ClaimRequestPending {
		return nil, repository.ErrNotPending
	}

	adminID, decidedAt := decision.AdminID, decision.DecidedAt
	claim.DecidedBy = &adminID
	claim.DecidedAt = &decidedAt
	claim.DecisionReason = decision.Reason

	est, estOK := r.s.establishments[claim.EstablishmentID]
	if decision.Approve {
		claim.Status = model.ClaimRequestApproved
		if estOK && est.ClaimStatus == model.ClaimStatusPending {
			est.ClaimStatus = model.ClaimStatusVerified
			est.VerifiedAt = &decidedAt
		}
	} else {
		claim.Status = model.ClaimRequestRejected
		if estOK && est.ClaimStatus == model.ClaimStatusPending {
			est.ClaimStatus = model.ClaimStatusRejected
			est.ClaimedBy = nil
			est.ClaimedAt = nil
		}
	}
	if estOK {
		est.UpdatedAt = decidedAt
		r.s.establishments[est.ID] = est
	}
	r.s.claims[claim.ID] = claim

	key := staffKey{claim.EstablishmentID, claim.ClaimantID}
	if a, ok := r.s.staff[key]; ok {
		switch {
		case decision.Approve:
			a.Role = model.StaffRoleOwner
			a.IsAdmin = true
			a.Status = model.StaffStatusActive
			a.Permissions = model.OwnerPermissions()
		case a.Status == model.StaffStatusPending && a.Role == model.StaffRoleOwner:
			a.Status = model.StaffStatusInactive
		}
		a.UpdatedAt = decidedAt
		r.s.staff[key] = a
	}

	if decision.Event != nil {
		r.s.insertEventLocked(decision.Event)
	}
	return &claim, nil
}

func (r *claimRepo) Get(ctx context.Context, id uuid.UUID) (*model.Claim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	claim, ok := r.s.claims[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &claim, nil
}

func (r *claimRepo) List(ctx context.Context, status model.ClaimRequestStatus) ([]*model.Claim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []*model.Claim{}
	for _, c := range r.s.claims {
		c := c
		if status == "" || c.Status == status {
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *claimRepo) ResetOrphaned(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	pending := map[uuid.UUID]bool{}
	for _, c := range r.s.claims {
		if c.Status == model.ClaimRequestPending {
			pending[c.EstablishmentID] = true
		}
	}

	ids := []uuid.UUID{}
	for id, est := range r.s.establishments {
		if est.ClaimStatus != model.ClaimStatusPending || pending[id] {
			continue
		}
		since := est.UpdatedAt
		if est.ClaimedAt != nil {
			since = *est.ClaimedAt
		}
		if !since.Before(olderThan) {
			continue
		}
		est.ClaimStatus = model.ClaimStatusUnclaimed
		est.ClaimedBy = nil
		est.ClaimedAt = nil
		est.UpdatedAt = r.s.now()
		r.s.establishments[id] = est
		ids = append(ids, id)
	}
	return ids, nil
}

// ForceStatus overwrites an establishment's claim status without any claim
// bookkeeping. It reproduces rows left behind by interrupted writes.
func (s *Store) ForceStatus(id uuid.UUID, status model.ClaimStatus, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if est, ok := s.establishments[id]; ok {
		est.ClaimStatus = status
		est.ClaimedAt = &at
		est.UpdatedAt = at
		s.establishments[id] = est
	}
}

// --- invitations ---

type invitationRepo struct{ s *Store }

func (r *invitationRepo) Create(ctx context.Context, inv *model.Invitation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	inv.CreatedAt = r.s.now()
	r.s.invitations[hex.EncodeToString(inv.TokenHash)] = *inv
	return nil
}

func (r *invitationRepo) GetByHash(ctx context.Context, hash []byte) (*model.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	inv, ok := r.s.invitations[hex.EncodeToString(hash)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &inv, nil
}

// --- outbox ---

type outboxRepo struct{ s *Store }

func (s *Store) insertEventLocked(event *model.OutboxEvent) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = s.now()
	event.UpdatedAt = event.CreatedAt
	event.Status = model.OutboxStatusPending
	s.outbox[event.ID] = *event
}

func (r *outboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.insertEventLocked(event)
	return nil
}

func (r *outboxRepo) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	due := []model.OutboxEvent{}
	for _, e := range r.s.outbox {
		switch e.Status {
		case model.OutboxStatusPending, model.OutboxStatusRetry:
			if e.RetryAt == nil || !e.RetryAt.After(now) {
				due = append(due, e)
			}
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*model.OutboxEvent, 0, len(due))
	for _, e := range due {
		e := e
		e.Status = model.OutboxStatusProcessing
		e.UpdatedAt = now
		r.s.outbox[e.ID] = e
		out = append(out, &e)
	}
	return out, nil
}

func (r *outboxRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := r.s.now()
	e.Status = status
	e.ErrorMessage = errorMessage
	e.RetryAt = retryAt
	if status == model.OutboxStatusRetry {
		e.RetryCount++
	}
	if status == model.OutboxStatusProcessed {
		e.ProcessedAt = &now
	}
	e.UpdatedAt = now
	r.s.outbox[id] = e
	return nil
}

func (r *outboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, e := range r.s.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.s.outbox, id)
			n++
		}
	}
	return n, nil
}

// --- audit ---

type auditRepo struct{ s *Store }

func (r *auditRepo) Create(ctx context.Context, log *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = r.s.now()
	}
	r.s.audit = append(r.s.audit, *log)
	return nil
}

func (r *auditRepo) List(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []*model.AuditLog{}
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		l := r.s.audit[i]
		if l.EntityType == entityType && l.EntityID == entityID {
			out = append(out, &l)
		}
	}
	return out, nil
}

func (r *auditRepo) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	kept := r.s.audit[:0]
	var n int64
	for _, l := range r.s.audit {
		if l.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, l)
	}
	r.s.audit = kept
	return n, nil
}
