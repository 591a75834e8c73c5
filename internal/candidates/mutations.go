package candidates

import (
	"context"
	"log/slog"
	"slices"

	"github.com/garnizeh/iisa/internal/imaging"
	"github.com/garnizeh/iisa/pkg/models"
)

// Add registers a new candidate and resolves to its id. When the form carries
// an image it is encoded first; an encoding error resolves the future with
// that error and leaves the store untouched. Once issued, Add runs to
// completion even if ctx is canceled.
func (s *Store) Add(ctx context.Context, form Form) *Future[string] {
	ctx = context.WithoutCancel(ctx)
	f := newFuture[string]()
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		image, err := s.encode(ctx, form.ProfileImage)
		if err != nil {
			s.logger.Warn("profile image encoding failed", slog.Any("err", err))
			f.resolve("", err)
			return
		}

		s.mu.Lock()
		now := s.now()
		id := newID(now)
		for s.indexLocked(id) >= 0 {
			id = newID(now)
		}
		c := models.Candidate{
			ID:                  id,
			FullName:            form.FullName,
			Email:               form.Email,
			PhoneNumber:         form.PhoneNumber,
			Age:                 form.Age,
			City:                form.City,
			Hobbies:             form.Hobbies,
			WhyPerfectCandidate: form.WhyPerfectCandidate,
			ProfileImage:        image,
			SubmissionDate:      now,
			CanEdit:             true,
		}
		s.candidates = append(slices.Clip(s.candidates), c)
		s.visits.Registrations++
		s.current = id
		s.saveLocked(ctx)
		s.adapter.SaveString(ctx, KeyCurrentUser, id)
		s.mu.Unlock()

		s.logger.Info("candidate added", slog.String("id", id))
		s.notify(Change{Kind: ChangeAdded, ID: id})
		f.resolve(id, nil)
	}()
	return f
}

// Update overwrites the mutable fields of candidate id. It resolves to false
// when id is unknown or its edit window has closed; the rule is checked again
// when the change is applied, so a record whose window closes while an image
// is being encoded is still rejected. Without a new image the stored one is
// kept.
func (s *Store) Update(ctx context.Context, id string, form Form) *Future[bool] {
	ctx = context.WithoutCancel(ctx)
	if c, ok := s.FindByID(id); !ok || !c.CanEdit {
		return resolved(false, nil)
	}

	f := newFuture[bool]()
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		var image string
		if form.ProfileImage != nil {
			uri, err := s.encode(ctx, form.ProfileImage)
			if err != nil {
				s.logger.Warn("profile image encoding failed", slog.String("id", id), slog.Any("err", err))
				f.resolve(false, err)
				return
			}
			image = uri
		}

		s.mu.Lock()
		i := s.indexLocked(id)
		if i < 0 || !s.canEdit(s.candidates[i].SubmissionDate) {
			s.mu.Unlock()
			f.resolve(false, nil)
			return
		}
		updated := s.candidates[i]
		updated.FullName = form.FullName
		updated.Email = form.Email
		updated.PhoneNumber = form.PhoneNumber
		updated.Age = form.Age
		updated.City = form.City
		updated.Hobbies = form.Hobbies
		updated.WhyPerfectCandidate = form.WhyPerfectCandidate
		if form.ProfileImage != nil {
			updated.ProfileImage = image
		}
		now := s.now()
		updated.LastEditDate = &now
		updated.CanEdit = s.canEdit(updated.SubmissionDate)

		next := slices.Clone(s.candidates)
		next[i] = updated
		s.candidates = next
		s.saveLocked(ctx)
		s.mu.Unlock()

		s.logger.Info("candidate updated", slog.String("id", id))
		s.notify(Change{Kind: ChangeUpdated, ID: id})
		f.resolve(true, nil)
	}()
	return f
}

// Remove deletes candidate id. It reports false and changes nothing when id
// is unknown or its edit window has closed.
func (s *Store) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 || !s.canEdit(s.candidates[i].SubmissionDate) {
		s.mu.Unlock()
		return false
	}
	s.candidates = slices.Delete(slices.Clone(s.candidates), i, i+1)
	if s.visits.Registrations > 0 {
		s.visits.Registrations--
	}
	clearCurrent := s.current == id
	if clearCurrent {
		s.current = ""
	}
	s.saveLocked(ctx)
	if clearCurrent {
		s.adapter.Delete(ctx, KeyCurrentUser)
	}
	s.mu.Unlock()

	s.logger.Info("candidate removed", slog.String("id", id))
	s.notify(Change{Kind: ChangeRemoved, ID: id})
	return true
}

// CurrentCandidate returns the candidate this session registered or selected
// for editing.
func (s *Store) CurrentCandidate() (models.Candidate, bool) {
	s.mu.RLock()
	id := s.current
	s.mu.RUnlock()
	return s.FindByID(id)
}

// SetCurrent remembers id as this session's candidate. Unknown ids are
// refused.
func (s *Store) SetCurrent(ctx context.Context, id string) bool {
	s.mu.Lock()
	if s.indexLocked(id) < 0 {
		s.mu.Unlock()
		return false
	}
	s.current = id
	s.adapter.SaveString(ctx, KeyCurrentUser, id)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeCurrent, ID: id})
	return true
}

// RemoveCurrent deletes this session's own candidate.
func (s *Store) RemoveCurrent(ctx context.Context) bool {
	s.mu.RLock()
	id := s.current
	s.mu.RUnlock()
	if id == "" {
		return false
	}
	return s.Remove(ctx, id)
}

func (s *Store) encode(ctx context.Context, u *imaging.Upload) (string, error) {
	if u == nil {
		return "", nil
	}
	res := <-imaging.EncodeAsync(ctx, u)
	return res.DataURI, res.Err
}
