package packs_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"clawfeed/models"
	"clawfeed/packs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	nextId    int64
	sources   map[string]*models.Source // keyed by type + config
	subs      map[string]bool           // keyed by userId/sourceId
	installs  map[int64]int
	lookupErr error
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sources:  map[string]*models.Source{},
		subs:     map[string]bool{},
		installs: map[int64]int{},
	}
}

func sourceKey(sourceType, config string) string {
	return sourceType + "|" + config
}

func subKey(userId, sourceId int64) string {
	return fmt.Sprintf("%d/%d", userId, sourceId)
}

func (f *fakeStore) GetSourceByTypeConfig(ctx context.Context, sourceType, config string) (*models.Source, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if s, ok := f.sources[sourceKey(sourceType, config)]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeStore) CreateSource(ctx context.Context, source models.Source) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextId++
	source.Id = f.nextId
	f.sources[sourceKey(source.Type, source.Config)] = &source
	if source.CreatedBy != 0 {
		f.subs[subKey(source.CreatedBy, source.Id)] = true
	}
	return source.Id, nil
}

func (f *fakeStore) Subscribe(ctx context.Context, userId, sourceId int64) error {
	f.subs[subKey(userId, sourceId)] = true
	return nil
}

func (f *fakeStore) IsSubscribed(ctx context.Context, userId, sourceId int64) (bool, error) {
	return f.subs[subKey(userId, sourceId)], nil
}

func (f *fakeStore) IncrementPackInstall(ctx context.Context, packId int64) error {
	f.installs[packId]++
	return nil
}

func testPack(sourcesJSON string) *models.Pack {
	return &models.Pack{Id: 42, Slug: "ai-starter", Name: "AI Starter", SourcesJSON: sourcesJSON}
}

func TestInstallCreatesSourcesAndSubscribes(t *testing.T) {
	store := newFakeStore()
	installer := packs.NewInstaller(store)

	pack := testPack(`[
		{"name": "@karpathy", "type": "twitter_feed", "config": {"handle": "@karpathy"}},
		{"name": "Hacker News", "type": "hackernews", "config": {"filter": "top", "min_score": 100}}
	]`)

	result, err := installer.Install(context.Background(), pack, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 0, result.Skipped)
	assert.Len(t, store.sources, 2)
	assert.Equal(t, 1, store.installs[42])

	// Created sources are private and owned by the installing user
	for _, s := range store.sources {
		assert.False(t, s.IsPublic)
		assert.True(t, s.IsActive)
		assert.Equal(t, int64(1), s.CreatedBy)
		assert.True(t, store.subs[subKey(1, s.Id)])
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	store := newFakeStore()
	installer := packs.NewInstaller(store)
	pack := testPack(`[{"name": "r/LocalLLaMA", "type": "reddit", "config": {"subreddit": "LocalLLaMA"}}]`)

	first, err := installer.Install(context.Background(), pack, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Added)

	second, err := installer.Install(context.Background(), pack, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 1, second.Skipped)

	assert.Len(t, store.sources, 1)
	// The install counter still counts both calls
	assert.Equal(t, 2, store.installs[42])
}

func TestInstallSubscribesToExistingSource(t *testing.T) {
	store := newFakeStore()
	store.nextId = 10
	store.sources[sourceKey("hackernews", `{"filter":"top"}`)] = &models.Source{
		Id: 10, Type: "hackernews", Config: `{"filter":"top"}`, IsActive: true,
	}
	installer := packs.NewInstaller(store)
	pack := testPack(`[{"name": "HN", "type": "hackernews", "config": {"filter": "top"}}]`)

	result, err := installer.Install(context.Background(), pack, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Len(t, store.sources, 1)
	assert.True(t, store.subs[subKey(7, 10)])
}

func TestInstallNeverResurrectsDeletedSource(t *testing.T) {
	store := newFakeStore()
	store.sources[sourceKey("reddit", `{"subreddit":"golang"}`)] = &models.Source{
		Id: 3, Type: "reddit", Config: `{"subreddit":"golang"}`, IsDeleted: true,
	}
	installer := packs.NewInstaller(store)
	pack := testPack(`[{"name": "r/golang", "type": "reddit", "config": {"subreddit": "golang"}}]`)

	result, err := installer.Install(context.Background(), pack, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 1, result.Skipped)
	assert.False(t, store.subs[subKey(1, 3)])
	assert.True(t, store.sources[sourceKey("reddit", `{"subreddit":"golang"}`)].IsDeleted)
}

func TestInstallDuplicateTemplateInOnePack(t *testing.T) {
	store := newFakeStore()
	installer := packs.NewInstaller(store)

	// The same source twice; the second occurrence must see the row the
	// first one created
	pack := testPack(`[
		{"name": "HN", "type": "hackernews", "config": {"filter": "top"}},
		{"name": "HN again", "type": "hackernews", "config": {"filter": "top"}}
	]`)

	result, err := installer.Install(context.Background(), pack, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, store.sources, 1)
}

func TestInstallLookupFailureIsSoft(t *testing.T) {
	store := newFakeStore()
	store.lookupErr = errors.New("db on fire")
	installer := packs.NewInstaller(store)
	pack := testPack(`[{"name": "HN", "type": "hackernews", "config": {}}]`)

	result, err := installer.Install(context.Background(), pack, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 1, result.Skipped)
}

func TestInstallWriteFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("disk full")
	installer := packs.NewInstaller(store)
	pack := testPack(`[{"name": "HN", "type": "hackernews", "config": {}}]`)

	_, err := installer.Install(context.Background(), pack, 1)
	require.Error(t, err)
	assert.Equal(t, 0, store.installs[42], "failed install must not bump the counter")
}

func TestInstallInvalidSourcesJSON(t *testing.T) {
	installer := packs.NewInstaller(newFakeStore())
	_, err := installer.Install(context.Background(), testPack(`{"not": "an array"}`), 1)
	assert.Error(t, err)
}

func TestInstallAccountingInvariant(t *testing.T) {
	store := newFakeStore()
	store.sources[sourceKey("reddit", `{"subreddit":"golang"}`)] = &models.Source{
		Id: 1, Type: "reddit", Config: `{"subreddit":"golang"}`, IsDeleted: true,
	}
	installer := packs.NewInstaller(store)

	pack := testPack(`[
		{"name": "A", "type": "reddit", "config": {"subreddit": "golang"}},
		{"name": "B", "type": "hackernews", "config": {"filter": "top"}},
		{"name": "C", "type": "website", "config": {"url": "https://example.com"}}
	]`)

	result, err := installer.Install(context.Background(), pack, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Added+result.Skipped)
}

func TestNormalizeConfig(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "empty config becomes empty object",
			raw:      "",
			expected: "{}",
		},
		{
			name:     "string literal passes through",
			raw:      `"{\"handle\":\"@sama\"}"`,
			expected: `{"handle":"@sama"}`,
		},
		{
			name:     "object keys are sorted",
			raw:      `{"sort": "hot", "limit": 20, "subreddit": "golang"}`,
			expected: `{"limit":20,"sort":"hot","subreddit":"golang"}`,
		},
		{
			name:     "whitespace is normalized",
			raw:      `{ "url" : "https://example.com" }`,
			expected: `{"url":"https://example.com"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := packs.NormalizeConfig([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, config)
		})
	}
}

func TestNormalizeConfigInvalidJSON(t *testing.T) {
	_, err := packs.NormalizeConfig([]byte(`{broken`))
	assert.Error(t, err)
}
