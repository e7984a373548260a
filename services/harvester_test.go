package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RokasMazelis/carscrape/config"
	"github.com/RokasMazelis/carscrape/models"
)

const adMarkup = `<html><body><h1>Test Car</h1><div class="Price">€10,000</div></body></html>`

const searchMarkup = `<html><body><ul data-testid="card-list">
<li data-testid="listing-card-index-0"><a href="/cars-for-sale/one/1000001">one</a></li>
<li data-testid="listing-card-index-1"><a href="/cars-for-sale/two/1000002">two</a></li>
</ul></body></html>`

// fakeClient fails FetchAd for a URL a configured number of times, then
// serves markup.
type fakeClient struct {
	mu        sync.Mutex
	failures  map[string]int
	calls     map[string]int
	searchDoc string
	closed    bool
}

func newFakeClient(searchDoc string, failures map[string]int) *fakeClient {
	if failures == nil {
		failures = map[string]int{}
	}
	return &fakeClient{failures: failures, calls: map[string]int{}, searchDoc: searchDoc}
}

func (f *fakeClient) FetchDocument(_ context.Context, url string) (string, error) {
	if f.searchDoc == "" {
		return "", errors.New("navigation timeout")
	}
	return f.searchDoc, nil
}

func (f *fakeClient) FetchAd(_ context.Context, url string) (string, models.PhoneOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.failures[url] > 0 {
		f.failures[url]--
		return "", models.PhoneFailed(), errors.New("navigation timeout")
	}
	return adMarkup, models.Hidden(), nil
}

func (f *fakeClient) Close() { f.closed = true }

type fakeStore struct {
	mu      sync.Mutex
	records []models.AdRecord
}

func (s *fakeStore) Append(_ context.Context, rec models.AdRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		BaseURL:  "https://www.donedeal.ie",
		PageSize: 28,
		Harvest: config.HarvestConfig{
			MaxPages:     1,
			PageCap:      20,
			FetchRetries: 1,
			RetryBackoff: time.Millisecond,
			AdDelay:      time.Millisecond,
		},
	}
}

func TestRunDirect_RetryBoundSkipsFailingAd(t *testing.T) {
	failing := "https://www.donedeal.ie/cars-for-sale/bad/2000001"
	good := "https://www.donedeal.ie/cars-for-sale/good/2000002"

	// Two failures exceed the one-retry bound.
	client := newFakeClient("", map[string]int{failing: 2})
	store := &fakeStore{}
	h := NewHarvester(testConfig(), client, store)

	records := h.RunDirect(context.Background(), []string{failing, good})

	require.Len(t, records, 1)
	assert.Equal(t, "2000002", records[0].ID)
	assert.Equal(t, 2, client.calls[failing]) // initial attempt + one retry
	assert.Equal(t, 1, client.calls[good])
	assert.Len(t, store.records, 1)
}

func TestRunDirect_RetryThenSuccess(t *testing.T) {
	flaky := "https://www.donedeal.ie/cars-for-sale/flaky/2000003"

	client := newFakeClient("", map[string]int{flaky: 1})
	h := NewHarvester(testConfig(), client)

	records := h.RunDirect(context.Background(), []string{flaky})

	require.Len(t, records, 1)
	assert.Equal(t, 2, client.calls[flaky])
}

// A Hidden phone outcome is terminal: the fetch succeeded, so no retry.
func TestRunDirect_HiddenNotRetried(t *testing.T) {
	url := "https://www.donedeal.ie/cars-for-sale/quiet/2000004"

	client := newFakeClient("", nil)
	h := NewHarvester(testConfig(), client)

	records := h.RunDirect(context.Background(), []string{url})

	require.Len(t, records, 1)
	assert.Equal(t, models.PhoneHidden, records[0].Phone.Status)
	assert.Equal(t, 1, client.calls[url])
}

func TestRun_HarvestsDiscoveredListings(t *testing.T) {
	client := newFakeClient(searchMarkup, nil)
	store := &fakeStore{}
	h := NewHarvester(testConfig(), client, store)

	records, err := h.Run(context.Background(), "https://www.donedeal.ie/cars/Opel")

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1000001", records[0].ID)
	assert.Equal(t, "1000002", records[1].ID)
	// Persisted incrementally, one append per ad.
	assert.Len(t, store.records, 2)
}

func TestRun_MaxAdsStopsEarly(t *testing.T) {
	cfg := testConfig()
	cfg.Harvest.MaxAds = 1

	client := newFakeClient(searchMarkup, nil)
	h := NewHarvester(cfg, client)

	records, err := h.Run(context.Background(), "https://www.donedeal.ie/cars/Opel")

	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRun_SearchFetchFailureReturnsNothing(t *testing.T) {
	client := newFakeClient("", nil)
	h := NewHarvester(testConfig(), client)

	records, err := h.Run(context.Background(), "https://www.donedeal.ie/cars/Opel")

	assert.Error(t, err)
	assert.Empty(t, records)
}

func TestRunBatch_WorkersOwnSessions(t *testing.T) {
	urls := []string{
		"https://www.donedeal.ie/cars-for-sale/a/3000001",
		"https://www.donedeal.ie/cars-for-sale/b/3000002",
		"https://www.donedeal.ie/cars-for-sale/c/3000003",
	}

	cfg := testConfig()
	cfg.Harvest.Workers = 2

	var mu sync.Mutex
	var clients []*fakeClient
	store := &fakeStore{}

	records := RunBatch(context.Background(), cfg, urls, func() (PageClient, error) {
		mu.Lock()
		defer mu.Unlock()
		c := newFakeClient("", nil)
		clients = append(clients, c)
		return c, nil
	}, store)

	require.Len(t, records, 3)
	// Input order preserved.
	assert.Equal(t, "3000001", records[0].ID)
	assert.Equal(t, "3000003", records[2].ID)
	assert.Len(t, store.records, 3)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, clients, 2)
	for _, c := range clients {
		assert.True(t, c.closed)
	}
}
