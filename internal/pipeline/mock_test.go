package pipeline

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/chartsync/internal/model"
	"github.com/sells-group/chartsync/internal/wiki"
)

// --- Wiki Mock ---

type mockWikiClient struct {
	mock.Mock
}

func (m *mockWikiClient) Parse(ctx context.Context, page string) (*wiki.Page, error) {
	args := m.Called(ctx, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wiki.Page), args.Error(1)
}

func (m *mockWikiClient) PageInfo(ctx context.Context, titles ...string) ([]wiki.PageInfo, error) {
	args := m.Called(ctx, titles)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]wiki.PageInfo), args.Error(1)
}

func (m *mockWikiClient) QueryAll(ctx context.Context, params map[string]string, fn func(json.RawMessage) error) error {
	args := m.Called(ctx, params, fn)
	return args.Error(0)
}

// --- Upserter Mock ---

type mockUpserter struct {
	mock.Mock
}

func (m *mockUpserter) Authenticate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockUpserter) Upsert(ctx context.Context, batch []model.SongRecord) (int64, error) {
	args := m.Called(ctx, batch)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockUpserter) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockUpserter) Close() error {
	return nil
}
