// Package docstoretest holds a backend-agnostic conformance suite for
// docstore.Store implementations.
package docstoretest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"opsdesk/internal/docstore"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/platform/sentinel"
)

// Widget is a minimal document used to exercise backends.
type Widget struct {
	ID       uuid.UUID       `json:"id"`
	TenantID domain.TenantID `json:"tenantId"`
	Name     string          `json:"name"`
	Code     string          `json:"code,omitempty"`
	Color    string          `json:"color"`
	Active   bool            `json:"active"`
	Count    int             `json:"count"`
	Tags     []string        `json:"tags,omitempty"`
	domain.Audit
}

func (w *Widget) Key() uuid.UUID { return w.ID }
func (w *Widget) Tenant() domain.TenantID { return w.TenantID }
func (w *Widget) IsDeleted() bool { return w.Audit.IsDeleted() }

func (w *Widget) Clone() *Widget {
	out := *w
	out.Tags = append([]string(nil), w.Tags...)
	out.Audit = w.Audit.CloneAudit()
	return &out
}

// Schema declares Code as unique per tenant.
var Schema = docstore.Schema{Collection: "widgets", Unique: []string{"code"}, Indexes: []string{"color"}}

// Suite runs the shared contract against the store returned by NewStore.
type Suite struct {
	suite.Suite
	NewStore func() docstore.Store[*Widget]

	store  docstore.Store[*Widget]
	tenant domain.TenantID
	other  domain.TenantID
}

func (s *Suite) SetupTest() {
	s.store = s.NewStore()
	s.tenant = domain.NewTenantID()
	s.other = domain.NewTenantID()
}

func (s *Suite) widget(tenant domain.TenantID, name, color string) *Widget {
	return &Widget{ID: uuid.New(), TenantID: tenant, Name: name, Color: color, Active: true, Count: 1}
}

func (s *Suite) TestInsertAndGet() {
	ctx := context.Background()
	w := s.widget(s.tenant, "alpha", "red")
	w.Tags = []string{"x"}
	s.Require().NoError(s.store.Insert(ctx, w))

	got, err := s.store.Get(ctx, s.tenant, w.ID)
	s.Require().NoError(err)
	s.Equal("alpha", got.Name)
	s.Equal([]string{"x"}, got.Tags)

	s.Run("returned copy is detached", func() {
		got.Name = "mutated"
		again, err := s.store.Get(ctx, s.tenant, w.ID)
		s.Require().NoError(err)
		s.Equal("alpha", again.Name)
	})

	s.Run("duplicate id rejected", func() {
		err := s.store.Insert(ctx, w)
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("other tenant cannot see it", func() {
		_, err := s.store.Get(ctx, s.other, w.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *Suite) TestListFiltersAndExcludesDeleted() {
	ctx := context.Background()
	red := s.widget(s.tenant, "one", "red")
	blue := s.widget(s.tenant, "two", "blue")
	gone := s.widget(s.tenant, "three", "red")
	foreign := s.widget(s.other, "four", "red")
	for _, w := range []*Widget{red, blue, gone, foreign} {
		s.Require().NoError(s.store.Insert(ctx, w))
	}

	now := time.Now().UTC()
	actor := domain.NewUserID()
	_, err := s.store.Execute(ctx, s.tenant, gone.ID,
		func(w *Widget) error { return w.CanDelete() },
		func(w *Widget) { w.ApplyDelete(now, actor) },
	)
	s.Require().NoError(err)

	s.Run("soft-deleted excluded by default", func() {
		all, err := s.store.List(ctx, s.tenant, docstore.Query{})
		s.Require().NoError(err)
		s.Require().Len(all, 2)
		s.Equal("one", all[0].Name)
		s.Equal("two", all[1].Name)
	})

	s.Run("include deleted", func() {
		all, err := s.store.List(ctx, s.tenant, docstore.Query{IncludeDeleted: true})
		s.Require().NoError(err)
		s.Len(all, 3)
	})

	s.Run("equality filter", func() {
		reds, err := s.store.List(ctx, s.tenant, docstore.Query{}.Where("color", "red"))
		s.Require().NoError(err)
		s.Require().Len(reds, 1)
		s.Equal(red.ID, reds[0].ID)
	})

	s.Run("typed filter values", func() {
		active, err := s.store.List(ctx, s.tenant, docstore.Query{}.Where("active", true).Where("count", 1))
		s.Require().NoError(err)
		s.Len(active, 2)
	})

	s.Run("paging", func() {
		page, err := s.store.List(ctx, s.tenant, docstore.Query{Offset: 1, Limit: 1})
		s.Require().NoError(err)
		s.Require().Len(page, 1)
		s.Equal("two", page[0].Name)
	})

	s.Run("list all crosses tenants", func() {
		reds, err := s.store.ListAll(ctx, docstore.Query{}.Where("color", "red"))
		s.Require().NoError(err)
		s.Len(reds, 2)
	})
}

func (s *Suite) TestExecute() {
	ctx := context.Background()
	w := s.widget(s.tenant, "counter", "green")
	s.Require().NoError(s.store.Insert(ctx, w))

	s.Run("validate error aborts", func() {
		_, err := s.store.Execute(ctx, s.tenant, w.ID,
			func(*Widget) error { return errors.New("nope") },
			func(w *Widget) { w.Name = "changed" },
		)
		s.Require().Error(err)
		got, _ := s.store.Get(ctx, s.tenant, w.ID)
		s.Equal("counter", got.Name)
	})

	s.Run("missing document", func() {
		_, err := s.store.Execute(ctx, s.tenant, uuid.New(),
			func(*Widget) error { return nil },
			func(*Widget) {},
		)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("concurrent increments are serialized", func() {
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.store.Execute(ctx, s.tenant, w.ID,
					func(*Widget) error { return nil },
					func(w *Widget) { w.Count++ },
				)
				s.NoError(err)
			}()
		}
		wg.Wait()
		got, err := s.store.Get(ctx, s.tenant, w.ID)
		s.Require().NoError(err)
		s.Equal(11, got.Count)
	})
}

func (s *Suite) TestUniqueFields() {
	ctx := context.Background()
	a := s.widget(s.tenant, "a", "red")
	a.Code = "W-1"
	s.Require().NoError(s.store.Insert(ctx, a))

	dup := s.widget(s.tenant, "b", "red")
	dup.Code = "W-1"
	s.ErrorIs(s.store.Insert(ctx, dup), sentinel.ErrAlreadyUsed)

	elsewhere := s.widget(s.other, "c", "red")
	elsewhere.Code = "W-1"
	s.NoError(s.store.Insert(ctx, elsewhere))

	now := time.Now().UTC()
	_, err := s.store.Execute(ctx, s.tenant, a.ID,
		func(*Widget) error { return nil },
		func(w *Widget) { w.ApplyDelete(now, domain.NewUserID()) },
	)
	s.Require().NoError(err)
	s.NoError(s.store.Insert(ctx, dup), "code is free once the holder is deleted")
}

func (s *Suite) TestDeleteMany() {
	ctx := context.Background()
	a := s.widget(s.tenant, "a", "red")
	b := s.widget(s.tenant, "b", "red")
	keep := s.widget(s.tenant, "c", "red")
	foreign := s.widget(s.other, "d", "red")
	for _, w := range []*Widget{a, b, keep, foreign} {
		s.Require().NoError(s.store.Insert(ctx, w))
	}

	n, err := s.store.DeleteMany(ctx, s.tenant, []uuid.UUID{a.ID, b.ID, foreign.ID, uuid.New()})
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	_, err = s.store.Get(ctx, s.tenant, a.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	left, err := s.store.List(ctx, s.tenant, docstore.Query{IncludeDeleted: true})
	s.Require().NoError(err)
	s.Require().Len(left, 1)
	s.Equal(keep.ID, left[0].ID)

	_, err = s.store.Get(ctx, s.other, foreign.ID)
	s.NoError(err, "keys of another tenant are untouched")

	n, err = s.store.DeleteMany(ctx, s.tenant, nil)
	s.Require().NoError(err)
	s.Zero(n)
}
