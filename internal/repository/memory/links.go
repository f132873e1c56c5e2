// internal/repository/memory/links.go
package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
	"github.com/javajoker/partner-engine/internal/utils"
)

type linkRepo struct{ s *Store }

func (r linkRepo) Create(_ context.Context, link *models.PartnerLink) error {
	defer r.s.lock()()
	for _, l := range r.s.data.links {
		if l.ShortCode == link.ShortCode {
			return repository.ErrDuplicate
		}
	}
	r.s.stamp(&link.BaseModel)
	r.s.data.links[link.ID] = *link
	return nil
}

func (r linkRepo) GetByID(_ context.Context, id uuid.UUID) (*models.PartnerLink, error) {
	defer r.s.lock()()
	row, ok := r.s.data.links[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r linkRepo) GetByCode(_ context.Context, code string) (*models.PartnerLink, error) {
	defer r.s.lock()()
	for _, l := range r.s.data.links {
		if l.ShortCode == code {
			row := l
			return &row, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r linkRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	_, err := r.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r linkRepo) Update(_ context.Context, link *models.PartnerLink) error {
	defer r.s.lock()()
	if _, ok := r.s.data.links[link.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.touch(&link.BaseModel)
	r.s.data.links[link.ID] = *link
	return nil
}

func (r linkRepo) ListByPartner(_ context.Context, partnerID uuid.UUID, page utils.PaginationParams) ([]models.PartnerLink, int64, error) {
	defer r.s.lock()()
	rows := make([]models.PartnerLink, 0)
	for _, l := range r.s.data.links {
		if l.PartnerID == partnerID {
			rows = append(rows, l)
		}
	}
	newestFirst(rows, func(l models.PartnerLink) time.Time { return l.CreatedAt })
	return paginate(rows, page), int64(len(rows)), nil
}

func (r linkRepo) IncrementCounters(_ context.Context, id uuid.UUID, clicks, conversions int64) error {
	defer r.s.lock()()
	row, ok := r.s.data.links[id]
	if !ok {
		return repository.ErrNotFound
	}
	row.ClickCount += clicks
	row.ConversionCount += conversions
	r.s.data.links[id] = row
	return nil
}

type clickRepo struct{ s *Store }

func (r clickRepo) Create(_ context.Context, click *models.PartnerClick) error {
	defer r.s.lock()()
	r.s.stamp(&click.BaseModel)
	r.s.data.clicks[click.ID] = *click
	return nil
}

func (r clickRepo) GetByID(_ context.Context, id uuid.UUID) (*models.PartnerClick, error) {
	defer r.s.lock()()
	row, ok := r.s.data.clicks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r clickRepo) FindRecent(_ context.Context, linkID uuid.UUID, fingerprint string, since time.Time) (*models.PartnerClick, error) {
	defer r.s.lock()()
	var found *models.PartnerClick
	for _, c := range r.s.data.clicks {
		if c.LinkID != linkID || c.Fingerprint != fingerprint || c.LastSeenAt.Before(since) {
			continue
		}
		if found == nil || c.LastSeenAt.After(found.LastSeenAt) {
			row := c
			found = &row
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (r clickRepo) Touch(_ context.Context, id uuid.UUID, lastSeenAt time.Time) error {
	defer r.s.lock()()
	row, ok := r.s.data.clicks[id]
	if !ok {
		return repository.ErrNotFound
	}
	if lastSeenAt.After(row.LastSeenAt) {
		row.LastSeenAt = lastSeenAt
	}
	r.s.data.clicks[id] = row
	return nil
}

func (r clickRepo) ListForVisitor(_ context.Context, fingerprint, sessionID string, from, to time.Time) ([]models.PartnerClick, error) {
	defer r.s.lock()()
	rows := make([]models.PartnerClick, 0)
	for _, c := range r.s.data.clicks {
		matchesVisitor := (fingerprint != "" && c.Fingerprint == fingerprint) ||
			(sessionID != "" && c.SessionID == sessionID)
		if !matchesVisitor || c.ClickedAt.Before(from) || c.ClickedAt.After(to) {
			continue
		}
		rows = append(rows, c)
	}
	sortClicksOldestFirst(rows)
	return rows, nil
}

func (r clickRepo) MarkConverted(_ context.Context, id, conversionID uuid.UUID) error {
	defer r.s.lock()()
	row, ok := r.s.data.clicks[id]
	if !ok {
		return repository.ErrNotFound
	}
	row.ConversionID = &conversionID
	r.s.data.clicks[id] = row
	return nil
}

func (r clickRepo) filter(filter repository.ClickFilter) []models.PartnerClick {
	rows := make([]models.PartnerClick, 0)
	for _, c := range r.s.data.clicks {
		if filter.PartnerID != nil && c.PartnerID != *filter.PartnerID {
			continue
		}
		if filter.LinkID != nil && c.LinkID != *filter.LinkID {
			continue
		}
		if filter.From != nil && c.ClickedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !c.ClickedAt.Before(*filter.To) {
			continue
		}
		rows = append(rows, c)
	}
	return rows
}

func (r clickRepo) List(_ context.Context, filter repository.ClickFilter) ([]models.PartnerClick, int64, error) {
	defer r.s.lock()()
	rows := r.filter(filter)
	newestFirst(rows, func(c models.PartnerClick) time.Time { return c.ClickedAt })
	return paginate(rows, filter.PaginationParams), int64(len(rows)), nil
}

func (r clickRepo) Count(_ context.Context, filter repository.ClickFilter) (int64, error) {
	defer r.s.lock()()
	return int64(len(r.filter(filter))), nil
}

func sortClicksOldestFirst(rows []models.PartnerClick) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].ClickedAt.Equal(rows[j].ClickedAt) {
			return rows[i].ClickedAt.Before(rows[j].ClickedAt)
		}
		return rows[i].ID.String() < rows[j].ID.String()
	})
}
