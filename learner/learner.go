// Package learner ties the reward-model grid, the news allocation optimizer
// and the ads allocator into one page-serving facade. A Learner owns the
// content pools and the posterior state; callers drive it with visits and
// feedback callbacks and persist it through the count codecs.
package learner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/n0madic/go-page-bandits/ads"
	"github.com/n0madic/go-page-bandits/allocation"
	"github.com/n0madic/go-page-bandits/content"
	"github.com/n0madic/go-page-bandits/wbeta"
)

// Learner serves personalized page layouts and learns from click feedback.
// It is not safe for concurrent use; wrap it in a mutex or shard per user
// segment.
type Learner struct {
	categories     []content.Category
	prominences    []float64
	adProminences  []float64
	rowPivots      []float64
	colPivots      []float64
	bounds         []float64
	strategy       allocation.Strategy
	technique      allocation.Technique
	slotOrder      allocation.SlotOrder
	errorTrials    int
	adsEnabled     bool
	adsMode        ads.ConstraintMode
	adsPolicy      ads.DisplayPolicy
	bids           bool
	siblings       []content.QualityOracle
	interestDecay  bool
	seed           uint64
	seeded         bool
	log            zerolog.Logger
	registerer     prometheus.Registerer

	grid     *wbeta.Grid
	adsModel *wbeta.WeightedBeta
	opt      *allocation.Optimizer
	adsAlloc *ads.Allocator
	newsPool *content.NewsPool
	adsPool  *content.AdsPool
	rng      *rand.Rand
	metrics  *metrics
}

// Option configures a Learner.
type Option func(*Learner)

// WithSlotProminences sets the news slot prominence vector (default five
// slots of prominence 1).
func WithSlotProminences(p []float64) Option {
	return func(l *Learner) { l.prominences = append([]float64(nil), p...) }
}

// WithAdSlotProminences sets the ad slot prominence vector (default two
// slots of prominence 1).
func WithAdSlotProminences(p []float64) Option {
	return func(l *Learner) { l.adProminences = append([]float64(nil), p...) }
}

// WithPivots sets the state-bucket grid split points: rows bucket click
// counts, columns bucket observed prominence.
func WithPivots(rowPivots, colPivots []float64) Option {
	return func(l *Learner) {
		l.rowPivots = append([]float64(nil), rowPivots...)
		l.colPivots = append([]float64(nil), colPivots...)
	}
}

// WithStrategy selects the news allocation strategy (default RelaxedLP).
func WithStrategy(s allocation.Strategy) Option {
	return func(l *Learner) { l.strategy = s }
}

// WithTechnique selects the derandomization technique (default Rand1).
func WithTechnique(t allocation.Technique) Option {
	return func(l *Learner) { l.technique = t }
}

// WithSlotOrder selects the compressed strategy's slot walk.
func WithSlotOrder(s allocation.SlotOrder) Option {
	return func(l *Learner) { l.slotOrder = s }
}

// WithDiversityBounds sets per-category minimum page prominence.
func WithDiversityBounds(bounds []float64) Option {
	return func(l *Learner) { l.bounds = append([]float64(nil), bounds...) }
}

// WithErrorTrials enables empirical diversity-error measurement on every
// relaxed solve.
func WithErrorTrials(trials int) Option {
	return func(l *Learner) { l.errorTrials = trials }
}

// WithAdsMode selects the ads ILP formulation (default FullILP).
func WithAdsMode(m ads.ConstraintMode) Option {
	return func(l *Learner) { l.adsMode = m }
}

// WithAdsPolicy selects the ads display policy (default WPDDA).
func WithAdsPolicy(p ads.DisplayPolicy) Option {
	return func(l *Learner) { l.adsPolicy = p }
}

// WithBidMaximization weighs ad qualities by bid in the ads objective.
func WithBidMaximization(on bool) Option {
	return func(l *Learner) { l.bids = on }
}

// WithoutAds disables advertisement allocation entirely.
func WithoutAds() Option {
	return func(l *Learner) { l.adsEnabled = false }
}

// WithSiblings attaches quality oracles of other user-segment learners
// sharing the ad inventory.
func WithSiblings(siblings []content.QualityOracle) Option {
	return func(l *Learner) { l.siblings = siblings }
}

// WithInterestDecay buckets (user, item) pairs by the user's accumulated
// exposure instead of always using the fresh-state cell.
func WithInterestDecay(on bool) Option {
	return func(l *Learner) { l.interestDecay = on }
}

// WithRandomSeed makes every stochastic component deterministic.
func WithRandomSeed(seed uint64) Option {
	return func(l *Learner) { l.seed, l.seeded = seed, true }
}

// WithLogger sets the logger (default zerolog.Nop).
func WithLogger(log zerolog.Logger) Option {
	return func(l *Learner) { l.log = log }
}

// WithMetrics registers prometheus collectors; nil disables instrumentation.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(l *Learner) { l.registerer = reg }
}

// New validates the configuration and builds a learner with empty pools.
func New(categories []content.Category, options ...Option) (*Learner, error) {
	l := &Learner{
		categories:    categories,
		prominences:   []float64{1, 1, 1, 1, 1},
		adProminences: []float64{1, 1},
		rowPivots:     []float64{1},
		colPivots:     []float64{0.01, 1},
		strategy:      allocation.RelaxedLP,
		technique:     allocation.Rand1,
		slotOrder:     allocation.GreedyOrder,
		adsEnabled:    true,
		adsMode:       ads.FullILP,
		adsPolicy:     ads.WPDDA,
		log:           zerolog.Nop(),
	}
	for _, opt := range options {
		opt(l)
	}
	if len(categories) == 0 {
		return nil, errors.New("learner: empty category set")
	}

	if l.seeded {
		l.rng = rand.New(rand.NewPCG(l.seed, l.seed^0x9e3779b97f4a7c15))
	} else {
		l.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	var err error
	l.grid, err = wbeta.NewGrid(categories, l.prominences, l.rowPivots, l.colPivots, wbeta.WithRand(l.rng))
	if err != nil {
		return nil, err
	}

	optOptions := []allocation.Option{
		allocation.WithStrategy(l.strategy),
		allocation.WithTechnique(l.technique),
		allocation.WithSlotOrder(l.slotOrder),
		allocation.WithGrid(l.grid),
		allocation.WithRand(l.rng),
		allocation.WithLogger(l.log),
		allocation.WithErrorTrials(l.errorTrials),
	}
	if l.bounds != nil {
		optOptions = append(optOptions, allocation.WithDiversityBounds(l.bounds))
	}
	l.opt, err = allocation.NewOptimizer(categories, l.prominences, optOptions...)
	if err != nil {
		return nil, err
	}

	l.newsPool = content.NewNewsPool(categories)

	if l.adsEnabled {
		l.adsModel, err = wbeta.New(categories, l.adProminences, wbeta.WithRand(l.rng))
		if err != nil {
			return nil, err
		}
		l.adsAlloc, err = ads.New(categories, l.adProminences, l.prominences, l.adsModel,
			ads.WithConstraintMode(l.adsMode),
			ads.WithDisplayPolicy(l.adsPolicy),
			ads.WithBidMaximization(l.bids),
			ads.WithSiblings(l.siblings),
			ads.WithRand(l.rng),
			ads.WithLogger(l.log),
		)
		if err != nil {
			return nil, err
		}
		l.adsPool = content.NewAdsPool(categories)
	}

	l.metrics = newMetrics(l.registerer)
	return l, nil
}

// FillNewsPool inserts articles; append=false replaces the pool wholesale.
func (l *Learner) FillNewsPool(items []*content.News, appendItems bool) error {
	return l.newsPool.Fill(items, appendItems)
}

// FillAdsPool inserts ads; append=false replaces the pool wholesale.
func (l *Learner) FillAdsPool(items []*content.Ad, appendItems bool) error {
	if !l.adsEnabled {
		return errors.New("learner: ads allocation is disabled")
	}
	return l.adsPool.Fill(items, appendItems)
}

// Page is one served layout. The grid cell each article was sampled from is
// pinned at allocation time so later feedback updates the same posterior,
// even when the user's state has moved on or an article occupies several
// slots.
type Page struct {
	News []*content.News
	Ads  []*content.Ad

	cells    [][2]int
	fallback bool
}

// Fallback reports whether a cheaper strategy produced the news layout
// after the configured one failed.
func (p *Page) Fallback() bool { return p.fallback }

// ProcessVisit serves one page for the user: samples per-article qualities
// from the user's grid cells, solves the allocation, records the
// assignments and stages the user's exposure, then allocates ads off the
// finished layout. The user may be nil when interest decay is off.
func (l *Learner) ProcessVisit(ctx context.Context, user *content.UserState) (*Page, error) {
	if l.interestDecay && user == nil {
		return nil, errors.New("learner: interest decay requires a user state")
	}

	locate := func(n *content.News) (int, int) {
		if !l.interestDecay {
			return 0, 0
		}
		return l.grid.LocateUser(user, n)
	}

	qualities := make(content.Qualities, l.newsPool.Len())
	cellOf := make(map[int][2]int, l.newsPool.Len())
	for _, n := range l.newsPool.Items() {
		row, col := locate(n)
		cellOf[n.ID] = [2]int{row, col}
		q, err := l.grid.Cell(row, col).Sample(n.Category)
		if err != nil {
			return nil, err
		}
		qualities[n.ID] = q
	}

	start := time.Now()
	result, err := l.opt.Allocate(ctx, allocation.Request{
		Pool:      l.newsPool,
		Qualities: qualities,
		Locate:    locate,
	})
	l.metrics.observeSolve(time.Since(start))
	if err != nil {
		return nil, err
	}
	l.metrics.visit()
	if result.Fallback {
		l.metrics.fallback()
	}
	l.recordDiversityErrors()

	page := &Page{News: result.Layout, cells: make([][2]int, len(result.Layout)), fallback: result.Fallback}
	for i, n := range result.Layout {
		cell, ok := cellOf[n.ID]
		if !ok {
			// The compressed strategy can place items that joined the pool
			// after sampling started; bucket them now.
			row, col := locate(n)
			cell = [2]int{row, col}
			cellOf[n.ID] = cell
		}
		page.cells[i] = cell
		if err := l.grid.Cell(cell[0], cell[1]).Allocate(n.Category, i); err != nil {
			return nil, err
		}
		if l.interestDecay {
			user.NotePendingProminence(n.ID, l.prominences[i])
		}
	}

	if l.adsEnabled {
		adsLayout, err := l.adsAlloc.Allocate(ctx, l.adsPool, result.Layout)
		if err != nil {
			return nil, err
		}
		page.Ads = adsLayout
	}
	return page, nil
}

// NewsClick records a click on the article at the given page slot. The
// update goes to the grid cell pinned when the page was served; with
// interest decay on, the user's staged exposure and click are committed.
func (l *Learner) NewsClick(user *content.UserState, page *Page, slot int) error {
	if page == nil || slot < 0 || slot >= len(page.News) {
		return fmt.Errorf("learner: no article at slot %d", slot)
	}
	n := page.News[slot]
	cell := page.cells[slot]
	if err := l.grid.Cell(cell[0], cell[1]).Click(n.Category, slot); err != nil {
		if !errors.Is(err, wbeta.ErrOrderingViolation) {
			return err
		}
		l.log.Warn().Err(err).Int("news", n.ID).Int("slot", slot).Msg("click recorded out of order")
	}
	l.metrics.newsClick()
	if l.interestDecay && user != nil {
		user.NotePendingClick(n.ID)
		user.CommitClicks(n.ID)
		user.CommitProminence(n.ID)
	}
	return nil
}

// NewsImpression records that the user saw the article at the given slot
// without clicking; with interest decay on, the staged exposure becomes
// committed so the article's cell drifts toward the fatigued columns.
func (l *Learner) NewsImpression(user *content.UserState, page *Page, slot int) error {
	if page == nil || slot < 0 || slot >= len(page.News) {
		return fmt.Errorf("learner: no article at slot %d", slot)
	}
	if l.interestDecay && user != nil {
		user.CommitProminence(page.News[slot].ID)
	}
	return nil
}

// AdClick records a click on the ad displayed at the given ad slot.
func (l *Learner) AdClick(ad *content.Ad, slot int) error {
	if !l.adsEnabled {
		return errors.New("learner: ads allocation is disabled")
	}
	if err := l.adsModel.Click(ad.Category, slot); err != nil {
		if !errors.Is(err, wbeta.ErrOrderingViolation) {
			return err
		}
		l.log.Warn().Err(err).Int("ad", ad.ID).Int("slot", slot).Msg("ad click recorded out of order")
	}
	l.metrics.adClick()
	return nil
}

// SampleAdQuality implements content.QualityOracle so learners can act as
// read-only siblings of other user segments.
func (l *Learner) SampleAdQuality(ad *content.Ad) float64 {
	if !l.adsEnabled {
		return 0
	}
	q, err := l.adsModel.Sample(ad.Category)
	if err != nil {
		l.log.Warn().Err(err).Int("ad", ad.ID).Msg("sibling quality sample failed")
		return 0
	}
	return q
}

// Grid exposes the reward-model grid, mainly for inspection and tests.
func (l *Learner) Grid() *wbeta.Grid { return l.grid }

// DiversityErrors returns the measured diversity errors for a technique.
func (l *Learner) DiversityErrors(t allocation.Technique) []float64 {
	return l.opt.DiversityErrors(t)
}

// GridSink supplies one pair of writers per grid cell during export.
type GridSink func(row, col int) (assignment, reward io.Writer, err error)

// GridSource supplies one pair of readers per grid cell during import.
type GridSource func(row, col int) (assignment, reward io.Reader, err error)

// ExportGrid streams every grid cell's count matrices through the sink.
func (l *Learner) ExportGrid(sink GridSink) error {
	for r := 0; r < l.grid.Rows(); r++ {
		for c := 0; c < l.grid.Cols(); c++ {
			aw, rw, err := sink(r, c)
			if err != nil {
				return fmt.Errorf("learner: export cell (%d, %d): %w", r, c, err)
			}
			if err := l.grid.Cell(r, c).WriteCounts(aw, rw); err != nil {
				return fmt.Errorf("learner: export cell (%d, %d): %w", r, c, err)
			}
		}
	}
	return nil
}

// ImportGrid restores every grid cell's count matrices from the source.
func (l *Learner) ImportGrid(src GridSource) error {
	for r := 0; r < l.grid.Rows(); r++ {
		for c := 0; c < l.grid.Cols(); c++ {
			ar, rr, err := src(r, c)
			if err != nil {
				return fmt.Errorf("learner: import cell (%d, %d): %w", r, c, err)
			}
			if err := l.grid.Cell(r, c).ReadCounts(ar, rr); err != nil {
				return fmt.Errorf("learner: import cell (%d, %d): %w", r, c, err)
			}
		}
	}
	return nil
}

// ExportAdsCounts streams the ads model's count matrices.
func (l *Learner) ExportAdsCounts(assignment, reward io.Writer) error {
	if !l.adsEnabled {
		return errors.New("learner: ads allocation is disabled")
	}
	return l.adsModel.WriteCounts(assignment, reward)
}

// ImportAdsCounts restores the ads model's count matrices.
func (l *Learner) ImportAdsCounts(assignment, reward io.Reader) error {
	if !l.adsEnabled {
		return errors.New("learner: ads allocation is disabled")
	}
	return l.adsModel.ReadCounts(assignment, reward)
}

func (l *Learner) recordDiversityErrors() {
	if l.errorTrials <= 0 || l.metrics == nil {
		return
	}
	for _, t := range []allocation.Technique{allocation.Rand1, allocation.Rand2, allocation.Rand3} {
		if series := l.opt.DiversityErrors(t); len(series) > 0 {
			l.metrics.setDiversityError(t.String(), series[len(series)-1])
		}
	}
}
