package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coach-backend/internal/cache"
	"coach-backend/internal/query"
	"coach-backend/internal/schema"
	"coach-backend/internal/storage"
)

type school struct {
	ID        string    `json:"id" validate:"required"`
	Name      string    `json:"name" validate:"required,notblank"`
	City      string    `json:"city"`
	CreatedAt time.Time `json:"createdAt"`
}

type schoolInput struct {
	Name string `json:"name" validate:"required,notblank"`
	City string `json:"city" validate:"omitempty,max=40"`
}

var (
	schoolSchema      = schema.MustNew[school]("school")
	schoolInputSchema = schema.MustNew[schoolInput]("schoolInput")
)

// fakeRemote is an in-memory collaborator that counts its calls.
type fakeRemote struct {
	mu      sync.Mutex
	records []map[string]any
	calls   map[string]int
	seq     int

	fetchErr   error
	failWrites string
	// listShape overrides the list response when set.
	listShape func(records []map[string]any) any
}

func newFakeRemote(n int) *fakeRemote {
	f := &fakeRemote{calls: map[string]int{}}
	for i := 1; i <= n; i++ {
		f.add(fmt.Sprintf("School %02d", i), "Nakuru")
	}
	return f
}

func (f *fakeRemote) add(name, city string) map[string]any {
	f.seq++
	rec := map[string]any{
		"id":        fmt.Sprintf("s%d", f.seq),
		"name":      name,
		"city":      city,
		"createdAt": time.Date(2024, 1, 1, 0, 0, f.seq, 0, time.UTC),
	}
	f.records = append(f.records, rec)
	return rec
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) remote() Remote[schoolInput] {
	return Remote[schoolInput]{
		Fetch: func(_ context.Context, p query.Params) (any, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.calls["fetch"]++
			if f.fetchErr != nil {
				return nil, f.fetchErr
			}
			if f.listShape != nil {
				return f.listShape(f.records), nil
			}
			rows := append([]map[string]any(nil), f.records...)
			if p.SortBy == "name" {
				sort.Slice(rows, func(i, j int) bool {
					less := rows[i]["name"].(string) < rows[j]["name"].(string)
					if p.SortOrder == query.Desc {
						return !less
					}
					return less
				})
			}
			if city, ok := p.Filters["city"].(string); ok {
				var kept []map[string]any
				for _, r := range rows {
					if r["city"] == city {
						kept = append(kept, r)
					}
				}
				rows = kept
			}
			total := len(rows)
			start := min(p.Skip(), total)
			end := min(start+p.Limit, total)
			items := make([]any, 0, end-start)
			for _, r := range rows[start:end] {
				items = append(items, r)
			}
			return map[string]any{"items": items, "total": total}, nil
		},
		FetchByID: func(_ context.Context, id string) (any, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.calls["byID"]++
			for _, r := range f.records {
				if r["id"] == id {
					return map[string]any{"success": true, "data": r}, nil
				}
			}
			return map[string]any{"success": true, "data": nil}, nil
		},
		Create: func(_ context.Context, in schoolInput) (any, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.calls["create"]++
			if f.failWrites != "" {
				return map[string]any{"success": false, "error": f.failWrites}, nil
			}
			return map[string]any{"success": true, "data": f.add(in.Name, in.City)}, nil
		},
		Update: func(_ context.Context, id string, patch map[string]any) (any, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.calls["update"]++
			if f.failWrites != "" {
				return map[string]any{"success": false, "error": f.failWrites}, nil
			}
			for _, r := range f.records {
				if r["id"] == id {
					for k, v := range patch {
						r[k] = v
					}
					return map[string]any{"success": true, "data": r}, nil
				}
			}
			return map[string]any{"success": false, "error": "not found"}, nil
		},
		Delete: func(_ context.Context, id string) (any, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.calls["delete"]++
			for i, r := range f.records {
				if r["id"] == id {
					f.records = append(f.records[:i], f.records[i+1:]...)
					return map[string]any{"success": true}, nil
				}
			}
			return map[string]any{"success": false, "error": "not found"}, nil
		},
	}
}

func schoolConfig(f *fakeRemote) Config[school, schoolInput] {
	return Config[school, schoolInput]{
		Entity:       "schools",
		Remote:       f.remote(),
		FullSchema:   schoolSchema,
		InputSchema:  schoolInputSchema,
		SortFields:   []string{"name", "createdAt"},
		FilterFields: []string{"city"},
	}
}

func newHooks(t *testing.T, cfg Config[school, schoolInput], c *cache.Cache) *Hooks[school, schoolInput] {
	t.Helper()
	h, err := New(cfg, Deps{Cache: c, Storage: storage.NewMemoryStorage()})
	require.NoError(t, err)
	return h
}

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	c := cache.New(cache.Options{StaleTime: time.Minute})
	t.Cleanup(c.Close)
	return c
}

func TestList_PaginatesBackingStore(t *testing.T) {
	f := newFakeRemote(25)
	h := newHooks(t, schoolConfig(f), newCache(t))

	res := h.List(context.Background(), query.Params{Page: 2, Limit: 10, SortBy: "name", SortOrder: query.Asc})

	require.Nil(t, res.Error)
	assert.Len(t, res.Items, 10)
	assert.Equal(t, 25, res.Total)
	assert.Equal(t, 3, res.TotalPages)
	assert.True(t, res.HasMore)
	assert.Equal(t, "School 11", res.Items[0].Name)
}

func TestList_UnknownSortNeverReachesRemote(t *testing.T) {
	f := newFakeRemote(3)
	h := newHooks(t, schoolConfig(f), newCache(t))

	res := h.List(context.Background(), query.Params{SortBy: "password"})

	require.NotNil(t, res.Error)
	assert.Equal(t, KindConfiguration, res.Error.Kind)
	assert.Empty(t, res.Items)
	assert.Equal(t, 0, f.count("fetch"))
}

func TestList_CachesByCanonicalParams(t *testing.T) {
	f := newFakeRemote(3)
	h := newHooks(t, schoolConfig(f), newCache(t))
	ctx := context.Background()

	h.List(ctx, query.Params{Filters: map[string]any{"city": "Nakuru"}})
	res := h.List(ctx, query.Params{Page: 1, Filters: map[string]any{"city": "Nakuru"}})

	assert.Len(t, res.Items, 3)
	assert.False(t, res.IsStale)
	assert.Equal(t, 1, f.count("fetch"))
}

func TestList_DropsInvalidRecords(t *testing.T) {
	f := newFakeRemote(5)
	f.records[2]["name"] = "   "
	h := newHooks(t, schoolConfig(f), newCache(t))

	res := h.List(context.Background(), query.Params{})

	require.Nil(t, res.Error)
	assert.Len(t, res.Items, 4)
	assert.Equal(t, 5, res.Total)
}

func TestList_WindowsUnpaginatedArray(t *testing.T) {
	f := newFakeRemote(25)
	f.listShape = func(records []map[string]any) any {
		out := make([]any, len(records))
		for i, r := range records {
			out[i] = r
		}
		return out
	}
	h := newHooks(t, schoolConfig(f), newCache(t))

	res := h.List(context.Background(), query.Params{Page: 3, Limit: 10})

	require.Nil(t, res.Error)
	assert.Len(t, res.Items, 5)
	assert.Equal(t, 25, res.Total)
	assert.False(t, res.HasMore)
}

func TestList_AutoConvertsSingleArrayField(t *testing.T) {
	f := newFakeRemote(2)
	f.listShape = func(records []map[string]any) any {
		out := make([]any, len(records))
		for i, r := range records {
			out[i] = r
		}
		return map[string]any{"schoolList": out}
	}
	h := newHooks(t, schoolConfig(f), newCache(t))

	res := h.List(context.Background(), query.Params{})

	require.Nil(t, res.Error)
	assert.Len(t, res.Items, 2)
	assert.Contains(t, res.Message, "schoolList")
}

func TestList_TransportAndEnvelopeErrors(t *testing.T) {
	f := newFakeRemote(1)
	f.fetchErr = errors.New("connection refused")
	h := newHooks(t, schoolConfig(f), newCache(t))

	res := h.List(context.Background(), query.Params{})
	require.NotNil(t, res.Error)
	assert.Equal(t, KindTransport, res.Error.Kind)
	assert.Empty(t, res.Items)

	f.mu.Lock()
	f.fetchErr = nil
	f.listShape = func([]map[string]any) any { return map[string]any{"success": false, "error": "db down"} }
	f.mu.Unlock()

	res = h.List(context.Background(), query.Params{})
	require.NotNil(t, res.Error)
	assert.Equal(t, KindEnvelope, res.Error.Kind)
	assert.Equal(t, "db down", res.Message)
}

func TestByID_EmptyIDIsDisabled(t *testing.T) {
	f := newFakeRemote(1)
	h := newHooks(t, schoolConfig(f), newCache(t))

	res := h.ByID(context.Background(), "  ")

	assert.True(t, res.Disabled)
	assert.Nil(t, res.Data)
	assert.Nil(t, res.Error)
	assert.Equal(t, 0, f.count("byID"))
}

func TestByID_FoundNotFoundAndInvalid(t *testing.T) {
	f := newFakeRemote(2)
	f.records[1]["name"] = ""
	h := newHooks(t, schoolConfig(f), newCache(t))
	ctx := context.Background()

	res := h.ByID(ctx, "s1")
	require.True(t, res.Found)
	assert.Equal(t, "School 01", res.Data.Name)

	res = h.ByID(ctx, "missing")
	require.NotNil(t, res.Error)
	assert.Equal(t, KindNotFound, res.Error.Kind)

	res = h.ByID(ctx, "s2")
	require.NotNil(t, res.Error)
	assert.Equal(t, KindValidation, res.Error.Kind)
	assert.Equal(t, "name", res.Error.Details[0].Field)
}

func TestCreate_ValidatesBeforeRemote(t *testing.T) {
	f := newFakeRemote(0)
	h := newHooks(t, schoolConfig(f), newCache(t))

	res := h.Mutations().Create(context.Background(), schoolInput{Name: " "})

	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, KindValidation, res.Error.Kind)
	assert.Contains(t, res.Error.FieldErrors(), "name")
	assert.Equal(t, 0, f.count("create"))
}

func TestCreate_InvalidatesListsAndRefetches(t *testing.T) {
	f := newFakeRemote(2)
	c := newCache(t)
	h := newHooks(t, schoolConfig(f), c)
	ctx := context.Background()

	h.List(ctx, query.Params{})
	res := h.Mutations().Create(ctx, schoolInput{Name: "Lakeview", City: "Kisumu"})
	require.True(t, res.Success)
	assert.Equal(t, "Lakeview", res.Data.Name)

	c.Wait()
	list := h.List(ctx, query.Params{})
	assert.False(t, list.IsStale)
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, 2, f.count("fetch"))
}

func TestMutation_InvalidatesRelatedEntityLists(t *testing.T) {
	schools := newFakeRemote(2)
	visits := newFakeRemote(0)
	c := newCache(t)
	schoolHooks := newHooks(t, schoolConfig(schools), c)

	visitCfg := schoolConfig(visits)
	visitCfg.Entity = "visits"
	visitCfg.RelatedEntities = []string{"schools"}
	visitHooks := newHooks(t, visitCfg, c)
	ctx := context.Background()

	schoolHooks.List(ctx, query.Params{})
	require.True(t, visitHooks.Mutations().Create(ctx, schoolInput{Name: "Visit"}).Success)
	c.Wait()

	assert.Equal(t, 2, schools.count("fetch"))
}

func TestUpdate_PartialValidationAndDetailInvalidation(t *testing.T) {
	f := newFakeRemote(1)
	c := newCache(t)
	h := newHooks(t, schoolConfig(f), c)
	ctx := context.Background()
	m := h.Mutations()

	require.True(t, h.ByID(ctx, "s1").Found)

	res := m.Update(ctx, "s1", map[string]any{"city": strings.Repeat("x", 41)})
	require.NotNil(t, res.Error)
	assert.Equal(t, KindValidation, res.Error.Kind)

	res = m.Update(ctx, "s1", map[string]any{"bogus": 1})
	require.NotNil(t, res.Error)
	assert.Equal(t, KindValidation, res.Error.Kind)

	res = m.Update(ctx, "", map[string]any{"city": "Eldoret"})
	require.NotNil(t, res.Error)
	assert.Equal(t, KindConfiguration, res.Error.Kind)
	assert.Equal(t, 0, f.count("update"))

	res = m.Update(ctx, "s1", map[string]any{"city": "Eldoret", "id": "hijack"})
	require.True(t, res.Success)
	assert.Equal(t, "Eldoret", res.Data.City)
	assert.Equal(t, "s1", res.Data.ID)

	c.Wait()
	detail := h.ByID(ctx, "s1")
	assert.Equal(t, "Eldoret", detail.Data.City)
	assert.Equal(t, 2, f.count("byID"))
}

func TestDelete_RemovesDetailEntry(t *testing.T) {
	f := newFakeRemote(2)
	c := newCache(t)
	h := newHooks(t, schoolConfig(f), c)
	ctx := context.Background()

	require.True(t, h.ByID(ctx, "s1").Found)
	res := h.Mutations().Delete(ctx, "s1")
	require.True(t, res.Success)

	assert.False(t, c.Peek(cache.DetailKey("schools", "s1")).Exists)
}

func TestFailedMutation_LeavesCacheUntouched(t *testing.T) {
	f := newFakeRemote(2)
	f.failWrites = "duplicate name"
	c := newCache(t)
	h := newHooks(t, schoolConfig(f), c)
	ctx := context.Background()

	list := h.List(ctx, query.Params{})
	res := h.Mutations().Create(ctx, schoolInput{Name: "Hillside"})

	require.NotNil(t, res.Error)
	assert.Equal(t, KindEnvelope, res.Error.Kind)
	assert.Equal(t, "duplicate name", res.Error.Message)
	assert.False(t, c.Peek(cache.ListKey("schools", list.Params.Key())).Stale)

	res = h.Mutations().Delete(ctx, "nope")
	require.NotNil(t, res.Error)
	assert.Equal(t, KindEnvelope, res.Error.Kind)
}

func TestManager_TransitionsAndPersistence(t *testing.T) {
	f := newFakeRemote(25)
	store := storage.NewMemoryStorage()
	cfg := schoolConfig(f)
	cfg.PersistFilters = true
	h, err := New(cfg, Deps{Cache: newCache(t), Storage: store})
	require.NoError(t, err)
	ctx := context.Background()

	m := h.Manager(query.Params{Limit: 10})
	assert.Len(t, m.Load(ctx).Items, 10)

	res := m.SetPage(ctx, 3)
	assert.Equal(t, 3, res.Page)
	assert.Len(t, res.Items, 5)

	res = m.SetFilter(ctx, "city", "Nakuru")
	assert.Equal(t, 1, res.Page)

	before := m.Params()
	res = m.SetSort(ctx, "secret", query.Asc)
	require.NotNil(t, res.Error)
	assert.Equal(t, KindConfiguration, res.Error.Kind)
	assert.Equal(t, before, m.Params())

	m.SetSearch(ctx, "school")

	restored := h.Manager(query.Params{})
	assert.Equal(t, "Nakuru", restored.Params().Filters["city"])
	assert.Equal(t, 10, restored.Params().Limit)
	assert.Empty(t, restored.Params().Search)
}

func TestManager_SupersededLoadDoesNotOverwriteState(t *testing.T) {
	f := newFakeRemote(25)
	cfg := schoolConfig(f)
	fetch := cfg.Remote.Fetch
	started := make(chan struct{})
	gate := make(chan struct{})
	cfg.Remote.Fetch = func(ctx context.Context, p query.Params) (any, error) {
		if p.Page == 1 {
			close(started)
			<-gate
		}
		return fetch(ctx, p)
	}
	h := newHooks(t, cfg, newCache(t))
	ctx := context.Background()
	m := h.Manager(query.Params{Limit: 10, SortBy: "name", SortOrder: query.Asc})

	done := make(chan ListResult[school])
	go func() { done <- m.Load(ctx) }()
	<-started

	res := m.SetPage(ctx, 2)
	require.Nil(t, res.Error)
	close(gate)

	slow := <-done
	assert.Equal(t, 1, slow.Page, "the slow caller still gets its own page")

	state := m.State()
	assert.Equal(t, 2, state.Page)
	require.NotEmpty(t, state.Items)
	assert.Equal(t, "School 11", state.Items[0].Name)
}

func TestManager_CreateRefreshesState(t *testing.T) {
	f := newFakeRemote(1)
	h := newHooks(t, schoolConfig(f), newCache(t))
	ctx := context.Background()

	m := h.Manager(query.Params{})
	m.Load(ctx)
	require.True(t, m.Create(ctx, schoolInput{Name: "Lakeview"}).Success)

	state := m.State()
	assert.Equal(t, 2, state.Total)
	assert.False(t, state.IsStale)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	f := newFakeRemote(0)
	c := newCache(t)

	cfg := schoolConfig(f)
	cfg.Remote.Delete = nil
	_, err := New(cfg, Deps{Cache: c})
	assert.Error(t, err)

	cfg = schoolConfig(f)
	cfg.DefaultParams = query.Params{SortBy: "city"}
	_, err = New(cfg, Deps{Cache: c})
	assert.Error(t, err)

	cfg = schoolConfig(f)
	cfg.PersistFilters = true
	_, err = New(cfg, Deps{Cache: c})
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, KindConfiguration, appErr.Kind)
}

func TestService_ErasesTypesAndBuildsOptions(t *testing.T) {
	f := newFakeRemote(3)
	h := newHooks(t, schoolConfig(f), newCache(t))
	svc := NewServices(h.Service())
	ctx := context.Background()

	s, err := svc.Get("schools")
	require.NoError(t, err)
	_, err = svc.Get("nope")
	assert.Error(t, err)

	list := s.ListAny(ctx, query.Params{})
	assert.Len(t, list.Items, 3)

	created := s.CreateAny(ctx, map[string]any{"name": "Lakeview", "city": "Kisumu"})
	require.True(t, created.Success)

	bad := s.CreateAny(ctx, map[string]any{"city": "Kisumu"})
	require.NotNil(t, bad.Error)
	assert.Equal(t, KindValidation, bad.Error.Kind)

	opts, appErr := s.Options(ctx, "lake", 0)
	require.Nil(t, appErr)
	require.Len(t, opts, 1)
	assert.Equal(t, "Lakeview", opts[0].Label)
}
