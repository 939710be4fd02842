package extract

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docsieve/internal/domain"
	"docsieve/mocks"
)

const testModel = "gemini-2.0-flash"

func TestCacheManager_CreatesOnFirstUse(t *testing.T) {
	cache := new(mocks.MockPromptCache)
	cache.On("Create", mock.Anything, testModel, mock.Anything, "docsieve-primary", cacheTTL).
		Return("caches/c1", nil).Once()

	mgr := NewCacheManager(cache, testModel)
	name, err := mgr.GetOrCreate(context.Background(), domain.CacheDomainPrimary)

	require.NoError(t, err)
	assert.Equal(t, "caches/c1", name)
	cache.AssertExpectations(t)
}

func TestCacheManager_ReusesLiveHandle(t *testing.T) {
	cache := new(mocks.MockPromptCache)
	cache.On("Create", mock.Anything, testModel, mock.Anything, mock.Anything, cacheTTL).
		Return("caches/c1", nil).Once()
	cache.On("Probe", mock.Anything, "caches/c1").Return(nil)

	mgr := NewCacheManager(cache, testModel)

	first, err := mgr.GetOrCreate(context.Background(), domain.CacheDomainPrimary)
	require.NoError(t, err)
	second, err := mgr.GetOrCreate(context.Background(), domain.CacheDomainPrimary)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	cache.AssertNumberOfCalls(t, "Create", 1)
}

func TestCacheManager_ConcurrentFirstUseCreatesOnce(t *testing.T) {
	cache := new(mocks.MockPromptCache)
	cache.On("Create", mock.Anything, testModel, mock.Anything, mock.Anything, cacheTTL).
		Return("caches/c1", nil)
	cache.On("Probe", mock.Anything, "caches/c1").Return(nil)

	mgr := NewCacheManager(cache, testModel)

	const callers = 8
	names := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			names[i], errs[i] = mgr.GetOrCreate(context.Background(), domain.CacheDomainPrimary)
		}(i)
	}
	wg.Wait()

	for i := range names {
		require.NoError(t, errs[i])
		assert.Equal(t, "caches/c1", names[i])
	}
	cache.AssertNumberOfCalls(t, "Create", 1)
}

func TestCacheManager_ProbeFailureRecreatesOnce(t *testing.T) {
	cache := new(mocks.MockPromptCache)
	cache.On("Create", mock.Anything, testModel, mock.Anything, mock.Anything, cacheTTL).
		Return("caches/c1", nil).Once()
	cache.On("Probe", mock.Anything, "caches/c1").Return(errors.New("cache not found"))
	cache.On("Create", mock.Anything, testModel, mock.Anything, mock.Anything, cacheTTL).
		Return("caches/c2", nil).Once()

	mgr := NewCacheManager(cache, testModel)

	first, err := mgr.GetOrCreate(context.Background(), domain.CacheDomainPrimary)
	require.NoError(t, err)
	assert.Equal(t, "caches/c1", first)

	second, err := mgr.GetOrCreate(context.Background(), domain.CacheDomainPrimary)
	require.NoError(t, err)
	assert.Equal(t, "caches/c2", second)

	cache.AssertNumberOfCalls(t, "Create", 2)
}

func TestCacheManager_SmallInstructionSkipsCaching(t *testing.T) {
	cache := new(mocks.MockPromptCache)
	mgr := NewCacheManager(cache, testModel)

	name, err := mgr.GetOrCreate(context.Background(), domain.CacheDomainSecondary)

	require.NoError(t, err)
	assert.Empty(t, name)
	cache.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCacheManager_InvalidateClearsHandle(t *testing.T) {
	cache := new(mocks.MockPromptCache)
	cache.On("Create", mock.Anything, testModel, mock.Anything, mock.Anything, cacheTTL).
		Return("caches/c1", nil).Once()
	cache.On("Create", mock.Anything, testModel, mock.Anything, mock.Anything, cacheTTL).
		Return("caches/c2", nil).Once()

	mgr := NewCacheManager(cache, testModel)

	_, err := mgr.GetOrCreate(context.Background(), domain.CacheDomainPrimary)
	require.NoError(t, err)

	mgr.Invalidate(domain.CacheDomainPrimary)

	name, err := mgr.GetOrCreate(context.Background(), domain.CacheDomainPrimary)
	require.NoError(t, err)
	assert.Equal(t, "caches/c2", name)
	cache.AssertNumberOfCalls(t, "Create", 2)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1024, estimateTokens(string(make([]byte, 4096))))
	assert.GreaterOrEqual(t, estimateTokens(primarySystemInstruction), minCacheTokens)
	assert.Less(t, estimateTokens(secondarySystemInstruction), minCacheTokens)
}
