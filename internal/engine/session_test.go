package engine

import (
	"bytes"
	"context"
	"crypto/cipher"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blowfish"

	"github.com/datallboy/gotrack/internal/app"
	"github.com/datallboy/gotrack/internal/clock"
	"github.com/datallboy/gotrack/internal/crashguard"
	"github.com/datallboy/gotrack/internal/decoding"
	"github.com/datallboy/gotrack/internal/domain"
	"github.com/datallboy/gotrack/internal/infra/config"
	"github.com/datallboy/gotrack/internal/infra/logger"
	"github.com/datallboy/gotrack/internal/quality"
)

const testSecret = "0123456789abcdef"

type stubResolver struct {
	mu      sync.Mutex
	single  int
	batches [][]string
}

func (r *stubResolver) resolution(t *domain.Track, tier domain.Quality) domain.Resolution {
	res := domain.Resolution{URL: "https://cdn.test/" + t.ID + "/" + tier.Name}
	switch {
	case t.Protocol == domain.ProtocolGateway && t.Kind == domain.KindSong:
		res.Encryption = domain.BlockCipherCBC{Seed: t.ID}
	default:
		res.Encryption = domain.Plaintext{}
	}
	return res
}

func (r *stubResolver) ResolveBatch(ctx context.Context, tracks []*domain.Track, tier domain.Quality) ([]domain.Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, len(tracks))
	out := make([]domain.Resolution, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
		out[i] = r.resolution(t, tier)
	}
	r.batches = append(r.batches, ids)
	return out, nil
}

func (r *stubResolver) Resolve(ctx context.Context, t *domain.Track, tier domain.Quality) (domain.Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.single++
	return r.resolution(t, tier), nil
}

func (r *stubResolver) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.single
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

// stubFetcher serves the same payload for every URL. The first failOpens
// opens fail outright and the next cutOpens deliver half the payload. With
// unknownSize set, neither the probe nor the body advertises a length.
type stubFetcher struct {
	mu          sync.Mutex
	payload     []byte
	failOpens   int
	cutOpens    int
	unknownSize bool
	opens       int
	probes      int
}

func (f *stubFetcher) Probe(ctx context.Context, url string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if f.unknownSize {
		return -1, nil
	}
	return int64(len(f.payload)), nil
}

func (f *stubFetcher) Open(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++

	if f.opens <= f.failOpens {
		return nil, 0, errors.New("connection reset by peer")
	}

	size := int64(len(f.payload))
	if f.unknownSize {
		size = -1
	}
	if f.opens <= f.failOpens+f.cutOpens {
		half := f.payload[:len(f.payload)/2]
		return io.NopCloser(io.MultiReader(bytes.NewReader(half), errReader{})), size, nil
	}
	return io.NopCloser(bytes.NewReader(f.payload)), size, nil
}

func (f *stubFetcher) networkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens + f.probes
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("unexpected EOF from CDN") }

type stubProcessor struct {
	dir      string
	existing map[string]string
	// afterFinalize runs once the .part file has been renamed.
	afterFinalize func()
}

func (p *stubProcessor) Layout(t *domain.Track) {
	if t.DestDir == "" {
		t.DestDir = p.dir
	}
	if t.FileStem == "" {
		t.FileStem = t.Meta.Title
	}
}

func (p *stubProcessor) FindExisting(t *domain.Track) (string, bool) {
	path, ok := p.existing[t.ID]
	return path, ok
}

func (p *stubProcessor) Finalize(partPath, finalPath string) error {
	if err := os.Rename(partPath, finalPath); err != nil {
		return err
	}
	if p.afterFinalize != nil {
		p.afterFinalize()
	}
	return nil
}

// stubRemuxer fails the first fails calls, then copies src to dst.
type stubRemuxer struct {
	fails int
	calls int
}

func (r *stubRemuxer) Rewrap(ctx context.Context, src, dst string) error {
	r.calls++
	if r.calls <= r.fails {
		return errors.New("Invalid data found when processing input")
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Report(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) statuses() []domain.EventStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.EventStatus
	for _, ev := range r.events {
		out = append(out, ev.Status)
	}
	return out
}

type harness struct {
	app       *app.Context
	resolver  *stubResolver
	fetcher   *stubFetcher
	processor *stubProcessor
	remuxer   *stubRemuxer
	guard     *crashguard.Guard
	clock     *clock.Fake
	events    *recorder
	budget    *Budget
	dir       string
}

func newHarness(t *testing.T, payload []byte) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.Codec.BlockSecret = testSecret
	cfg.Retry.LocalMax = 3
	cfg.Retry.GlobalMax = 100

	h := &harness{
		resolver:  &stubResolver{},
		fetcher:   &stubFetcher{payload: payload},
		processor: &stubProcessor{dir: t.TempDir(), existing: map[string]string{}},
		remuxer:   &stubRemuxer{},
		guard:     crashguard.New(logger.NewNop()),
		clock:     clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		events:    &recorder{},
	}
	h.dir = h.processor.dir
	cfg.Download.OutDir = h.dir

	ctx := app.NewContext(cfg, logger.NewNop())
	ctx.Clock = h.clock
	ctx.Resolver = h.resolver
	ctx.Fetcher = h.fetcher
	ctx.Processor = h.processor
	ctx.Remuxer = h.remuxer
	ctx.Registry = h.guard
	ctx.Reporter = h.events
	h.app = ctx
	h.budget = NewBudget(cfg.Retry.LocalMax, cfg.Retry.GlobalMax)
	return h
}

func (h *harness) session(opts Options) *Session {
	codec := decoding.New([]byte(testSecret), h.app.Config.BlockIV())
	return NewSession(h.app, codec, h.budget, opts)
}

func (h *harness) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if e.Name() != LockName {
			names = append(names, e.Name())
		}
	}
	return names
}

func songTrack(id, title string) *domain.Track {
	return &domain.Track{
		ID:       id,
		Kind:     domain.KindSong,
		Protocol: domain.ProtocolGateway,
		Token:    "tok-" + id,
		Meta:     domain.Metadata{Title: title, Artist: "Daft Punk", Album: "Discovery"},
	}
}

func randomBytes(n int) []byte {
	p := make([]byte, n)
	rand.New(rand.NewSource(7)).Read(p)
	return p
}

func encryptForTrack(t *testing.T, id string, plain []byte) []byte {
	t.Helper()
	block, err := blowfish.NewCipher(decoding.DeriveBlockKey(id, []byte(testSecret)))
	require.NoError(t, err)
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, config.Default().BlockIV()).CryptBlocks(out, plain)
	return out
}

func TestExistingTrackIsSkippedWithoutNetwork(t *testing.T) {
	h := newHarness(t, randomBytes(64))
	track := songTrack("3135556", "One More Time")
	h.processor.existing[track.ID] = filepath.Join(h.dir, "One More Time.flac")

	s := h.session(Options{AllowCascade: true})
	for range 2 {
		out := s.Download(context.Background(), track)
		assert.Equal(t, domain.OutcomeSkipped, out.Status)
		assert.Equal(t, h.processor.existing[track.ID], out.Path)
	}

	assert.Zero(t, h.resolver.calls())
	assert.Zero(t, h.fetcher.networkCalls())
	assert.Equal(t, []domain.EventStatus{domain.EventSkipped, domain.EventSkipped}, h.events.statuses())
}

func TestDownloadDecryptsToFinalPath(t *testing.T) {
	plain := randomBytes(8 * 512)
	track := songTrack("3135556", "One More Time")

	h := newHarness(t, encryptForTrack(t, track.ID, plain))
	out := h.session(Options{AllowCascade: true}).Download(context.Background(), track)

	require.Equal(t, domain.OutcomeDone, out.Status, out.Reason)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, int64(len(plain)), out.Bytes)
	assert.Equal(t, "FLAC", out.Quality)

	got, err := os.ReadFile(filepath.Join(h.dir, "One More Time.flac"))
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	assert.Equal(t, []string{"One More Time.flac"}, h.files(t))
	assert.Empty(t, h.guard.Active())
	assert.Equal(t, domain.EventDone, h.events.statuses()[len(h.events.statuses())-1])
}

func TestRetryCeilingLeavesNoFile(t *testing.T) {
	h := newHarness(t, randomBytes(64))
	h.fetcher.failOpens = 1000

	track := songTrack("42", "Digital Love")
	out := h.session(Options{AllowCascade: true}).Download(context.Background(), track)

	assert.Equal(t, domain.OutcomeFailed, out.Status)
	assert.Equal(t, domain.FailureRetryBudget, out.Kind)
	assert.ErrorIs(t, out.Err, domain.ErrRetryBudgetExhausted)
	assert.ErrorIs(t, out.Err, domain.ErrStreamTransient)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, int64(3), h.budget.Global())

	// Every attempt resolves again because pre-resolved sources are single use.
	assert.Equal(t, 3, h.resolver.calls())
	assert.Equal(t, []time.Duration{30 * time.Second, 60 * time.Second}, h.clock.Sleeps())

	assert.Empty(t, h.files(t))
	assert.Empty(t, h.guard.Active())
}

func TestInterruptedStreamRestartsFromScratch(t *testing.T) {
	plain := randomBytes(8 * 256)
	track := songTrack("77", "Aerodynamic")

	h := newHarness(t, encryptForTrack(t, track.ID, plain))
	h.fetcher.cutOpens = 1

	out := h.session(Options{AllowCascade: true}).Download(context.Background(), track)
	require.Equal(t, domain.OutcomeDone, out.Status, out.Reason)
	assert.Equal(t, 2, out.Attempts)

	got, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
	assert.Equal(t, []string{"Aerodynamic.flac"}, h.files(t))
	assert.Contains(t, h.events.statuses(), domain.EventRetrying)
}

func TestEmptyPayloadIsNotDone(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.unknownSize = true

	out := h.session(Options{AllowCascade: true}).Download(context.Background(), songTrack("13", "Empty"))
	assert.Equal(t, domain.OutcomeFailed, out.Status)
	assert.Equal(t, domain.FailureRetryBudget, out.Kind)
	assert.ErrorIs(t, out.Err, domain.ErrStreamTransient)
	assert.Equal(t, 3, out.Attempts)

	assert.Empty(t, h.files(t))
	assert.Empty(t, h.guard.Active())
	assert.NotContains(t, h.events.statuses(), domain.EventDone)
}

func TestCancelledDownloadCleansUp(t *testing.T) {
	h := newHarness(t, randomBytes(64))
	h.fetcher.failOpens = 1000

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := h.session(Options{}).Download(ctx, songTrack("9", "Voyager"))
	assert.Equal(t, domain.OutcomeFailed, out.Status)
	assert.Equal(t, domain.FailureCancelled, out.Kind)
	assert.Empty(t, h.files(t))
	assert.Empty(t, h.guard.Active())
}

func streamTrack() *domain.Track {
	return &domain.Track{
		ID:       "4uLU6hMCjMI75M1A2tKUQC",
		Kind:     domain.KindSong,
		Protocol: domain.ProtocolStream,
		Meta:     domain.Metadata{Title: "Never Gonna Give You Up", Artist: "Rick Astley"},
	}
}

func TestRewrapRetriesOnce(t *testing.T) {
	payload := randomBytes(1000)
	h := newHarness(t, payload)
	h.remuxer.fails = 1

	out := h.session(Options{AllowCascade: true}).Download(context.Background(), streamTrack())
	require.Equal(t, domain.OutcomeDone, out.Status, out.Reason)
	assert.Equal(t, quality.VeryHigh.Name, out.Quality)
	assert.Equal(t, 2, h.remuxer.calls)
	assert.Equal(t, []time.Duration{30 * time.Second}, h.clock.Sleeps())

	got, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, []string{"Never Gonna Give You Up.ogg"}, h.files(t))
	assert.Empty(t, h.guard.Active())
}

func TestRawFileStaysRegisteredUntilRewrapped(t *testing.T) {
	h := newHarness(t, randomBytes(1000))
	track := streamTrack()

	var active []string
	h.processor.afterFinalize = func() { active = h.guard.Active() }

	out := h.session(Options{AllowCascade: true}).Download(context.Background(), track)
	require.Equal(t, domain.OutcomeDone, out.Status, out.Reason)

	assert.Contains(t, active, out.Path)
	assert.Empty(t, h.guard.Active())
}

func TestRewrapFailureRemovesEverything(t *testing.T) {
	h := newHarness(t, randomBytes(1000))
	h.remuxer.fails = 2

	out := h.session(Options{AllowCascade: true}).Download(context.Background(), streamTrack())
	assert.Equal(t, domain.OutcomeFailed, out.Status)
	assert.Equal(t, domain.FailureContainerConversion, out.Kind)
	assert.Equal(t, 2, h.remuxer.calls)
	assert.Empty(t, h.files(t))
	assert.Empty(t, h.guard.Active())
}

func TestRealTimePacesToDuration(t *testing.T) {
	h := newHarness(t, randomBytes(8192))
	track := &domain.Track{
		ID:        "ep-1",
		Kind:      domain.KindEpisode,
		DirectURL: "https://cdn.test/ep-1.mp3",
		Duration:  10,
		Meta:      domain.Metadata{Title: "Episode One"},
	}

	start := h.clock.Now()
	out := h.session(Options{RealTime: true}).Download(context.Background(), track)
	require.Equal(t, domain.OutcomeDone, out.Status, out.Reason)

	assert.InDelta(t, float64(10*time.Second), float64(h.clock.Now().Sub(start)), float64(time.Millisecond))
	assert.Contains(t, h.events.statuses(), domain.EventRealTime)
	assert.Equal(t, []string{"Episode One.mp3"}, h.files(t))
}
