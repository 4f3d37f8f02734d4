// Package orchestrator coordinates the three analysis dimensions across a
// document's paragraphs and maintains versioned session state. Dimensions
// fail independently: a degraded dimension leaves its fields null without
// cancelling the others.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiseki/internal/classify"
	"github.com/hyperjump/kaiseki/internal/gateway"
	"github.com/hyperjump/kaiseki/internal/models"
	"github.com/hyperjump/kaiseki/internal/readability"
	"github.com/hyperjump/kaiseki/internal/session"
	"github.com/hyperjump/kaiseki/pkg/utils"
)

var (
	// ErrSessionNotFound is returned when the session id is unknown or
	// expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidEdit is returned for structural edits that cannot apply:
	// out-of-range ids, bad split positions, reorder set mismatches.
	ErrInvalidEdit = errors.New("invalid structural edit")
	// ErrEmptyDocument is returned when the input text yields no
	// paragraphs.
	ErrEmptyDocument = errors.New("document contains no paragraphs")
)

// labelGateway is the slice of the failover gateway the orchestrator needs.
type labelGateway interface {
	ClassifyAll(ctx context.Context, texts []string, topic string) ([]gateway.ChunkOutcome, error)
	ClassifyChunk(ctx context.Context, id, text, topic string, forceStream bool) (gateway.ChunkOutcome, error)
}

// relevanceScorer is the slice of the relevance service the orchestrator
// needs.
type relevanceScorer interface {
	Ready() bool
	Score(ctx context.Context, text, topic string) (float64, error)
	ScoreBatch(ctx context.Context, texts []string, topic string) ([]float64, error)
	InvalidateParagraphs(texts []string)
}

// Orchestrator drives full, incremental and structural analysis against the
// session store. Sessions are serialized individually; different sessions
// proceed concurrently.
type Orchestrator struct {
	store     session.Store
	gateway   labelGateway
	relevance relevanceScorer
	logger    *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates an orchestrator. The gateway and relevance service may be nil
// for degraded operation; their dimensions then stay null.
func New(store session.Store, gw labelGateway, relevance relevanceScorer, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:     store,
		gateway:   gw,
		relevance: relevance,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	lock, ok := o.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[sessionID] = lock
	}
	return lock
}

// AnalyzeDocument runs a full analysis, creating the session or replacing
// its previous contents. An empty sessionID allocates a fresh one.
func (o *Orchestrator) AnalyzeDocument(ctx context.Context, text, topic, sessionID string) (*models.AnalysisResult, error) {
	texts := utils.SplitParagraphs(text)
	if len(texts) == 0 {
		return nil, ErrEmptyDocument
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	paragraphs, err := o.analyzeParagraphs(ctx, texts, topic)
	if err != nil {
		return nil, err
	}
	o.logger.Info("document analyzed",
		zap.String("session", sessionID),
		zap.Int("paragraphs", len(paragraphs)),
		zap.Duration("took", time.Since(start)),
	)

	snapshot := &models.Snapshot{
		SessionID:  sessionID,
		Topic:      topic,
		Paragraphs: paragraphs,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := o.store.Save(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return buildResult(snapshot), nil
}

// analyzeParagraphs runs the three dimensions concurrently over texts and
// returns the merged paragraph table. Only context cancellation is
// propagated as an error; dimension failures leave null fields.
func (o *Orchestrator) analyzeParagraphs(ctx context.Context, texts []string, topic string) ([]models.Paragraph, error) {
	paragraphs := make([]models.Paragraph, len(texts))
	for i, text := range texts {
		paragraphs[i] = models.Paragraph{ID: i, Text: text}
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range paragraphs {
			scores := readability.Analyze(paragraphs[i].Text)
			paragraphs[i].Metrics.LIX = scores.LIX
			paragraphs[i].Metrics.SMOG = scores.SMOG
			paragraphs[i].Metrics.Complexity = scores.Complexity
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if o.relevance == nil || !o.relevance.Ready() {
			o.logger.Warn("relevance skipped: embedding model not available")
			return
		}
		scores, err := o.relevance.ScoreBatch(ctx, texts, topic)
		if err != nil {
			if ctx.Err() != nil {
				errCh <- ctx.Err()
				return
			}
			o.logger.Warn("relevance failed, fields left null", zap.Error(err))
			return
		}
		for i, score := range scores {
			s := score
			paragraphs[i].Metrics.Relevance = &s
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if o.gateway == nil {
			for i := range paragraphs {
				setUnavailable(&paragraphs[i].Metrics)
			}
			return
		}
		outcomes, err := o.gateway.ClassifyAll(ctx, texts, topic)
		if err != nil {
			errCh <- err
			return
		}
		for i, out := range outcomes {
			applyOutcome(&paragraphs[i].Metrics, out)
		}
	}()

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	return paragraphs, nil
}

// analyzeSingle computes all three dimensions for one paragraph text. Label
// classification runs in single-paragraph mode, skipping batch planning.
func (o *Orchestrator) analyzeSingle(ctx context.Context, id int, text, topic string) (models.Paragraph, error) {
	p := models.Paragraph{ID: id, Text: text}

	scores := readability.Analyze(text)
	p.Metrics.LIX = scores.LIX
	p.Metrics.SMOG = scores.SMOG
	p.Metrics.Complexity = scores.Complexity

	if o.relevance != nil && o.relevance.Ready() {
		score, err := o.relevance.Score(ctx, text, topic)
		if err != nil {
			if ctx.Err() != nil {
				return models.Paragraph{}, ctx.Err()
			}
			o.logger.Warn("relevance failed for paragraph", zap.Int("id", id), zap.Error(err))
		} else {
			p.Metrics.Relevance = &score
		}
	}

	if o.gateway == nil {
		setUnavailable(&p.Metrics)
		return p, nil
	}
	out, err := o.gateway.ClassifyChunk(ctx, fmt.Sprintf("p%d", id), text, topic, false)
	if err != nil {
		return models.Paragraph{}, err
	}
	applyOutcome(&p.Metrics, out)
	return p, nil
}

// PreviewParagraph computes metrics for candidate text without mutating the
// session. The session must exist and the paragraph id must be in range.
func (o *Orchestrator) PreviewParagraph(ctx context.Context, sessionID string, paragraphID int, text string) (*models.Paragraph, error) {
	snapshot, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if paragraphID < 0 || paragraphID >= len(snapshot.Paragraphs) {
		return nil, fmt.Errorf("%w: paragraph %d out of range", ErrInvalidEdit, paragraphID)
	}
	p, err := o.analyzeSingle(ctx, paragraphID, text, snapshot.Topic)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CommitParagraph replaces one paragraph's text and recomputes its metrics.
// Other paragraphs keep their fields; ordinals do not change.
func (o *Orchestrator) CommitParagraph(ctx context.Context, sessionID string, paragraphID int, text string) (*models.AnalysisResult, error) {
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	snapshot, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if paragraphID < 0 || paragraphID >= len(snapshot.Paragraphs) {
		return nil, fmt.Errorf("%w: paragraph %d out of range", ErrInvalidEdit, paragraphID)
	}

	old := snapshot.Paragraphs[paragraphID].Text
	p, err := o.analyzeSingle(ctx, paragraphID, text, snapshot.Topic)
	if err != nil {
		return nil, err
	}
	snapshot.Paragraphs[paragraphID] = p
	if o.relevance != nil {
		o.relevance.InvalidateParagraphs([]string{old})
	}
	return o.persist(ctx, snapshot)
}

// MergeParagraphs joins two paragraphs into one at the position of the
// first, renumbers the table and recomputes metrics for the merged text.
// Labels are invalidated for the whole session since discourse roles depend
// on paragraph neighborhood.
func (o *Orchestrator) MergeParagraphs(ctx context.Context, sessionID string, first, second int) (*models.AnalysisResult, error) {
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	snapshot, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	n := len(snapshot.Paragraphs)
	if first == second || first < 0 || first >= n || second < 0 || second >= n {
		return nil, fmt.Errorf("%w: cannot merge %d and %d of %d paragraphs", ErrInvalidEdit, first, second, n)
	}
	if first > second {
		first, second = second, first
	}

	textA := snapshot.Paragraphs[first].Text
	textB := snapshot.Paragraphs[second].Text
	merged := mergeTexts(textA, textB)

	kept := make([]models.Paragraph, 0, n-1)
	kept = append(kept, snapshot.Paragraphs[:second]...)
	kept = append(kept, snapshot.Paragraphs[second+1:]...)
	mergedPara, err := o.analyzeMerged(ctx, merged, snapshot.Topic)
	if err != nil {
		return nil, err
	}
	kept[first] = mergedPara
	snapshot.Paragraphs = renumber(kept)
	clearAllLabels(snapshot)
	if o.relevance != nil {
		o.relevance.InvalidateParagraphs([]string{textA, textB})
	}
	return o.persist(ctx, snapshot)
}

// SplitParagraph splits one paragraph at a rune position into two,
// renumbers the table and recomputes metrics for both halves. Labels are
// invalidated for the whole session.
func (o *Orchestrator) SplitParagraph(ctx context.Context, sessionID string, paragraphID, position int) (*models.AnalysisResult, error) {
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	snapshot, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if paragraphID < 0 || paragraphID >= len(snapshot.Paragraphs) {
		return nil, fmt.Errorf("%w: paragraph %d out of range", ErrInvalidEdit, paragraphID)
	}
	original := []rune(snapshot.Paragraphs[paragraphID].Text)
	if position <= 0 || position >= len(original) {
		return nil, fmt.Errorf("%w: split position %d out of bounds for %d runes", ErrInvalidEdit, position, len(original))
	}
	head := strings.TrimRight(string(original[:position]), " \t\n")
	tail := strings.TrimLeft(string(original[position:]), " \t\n")
	if head == "" || tail == "" {
		return nil, fmt.Errorf("%w: split yields an empty paragraph", ErrInvalidEdit)
	}

	headPara, err := o.analyzeMerged(ctx, head, snapshot.Topic)
	if err != nil {
		return nil, err
	}
	tailPara, err := o.analyzeMerged(ctx, tail, snapshot.Topic)
	if err != nil {
		return nil, err
	}

	next := make([]models.Paragraph, 0, len(snapshot.Paragraphs)+1)
	next = append(next, snapshot.Paragraphs[:paragraphID]...)
	next = append(next, headPara, tailPara)
	next = append(next, snapshot.Paragraphs[paragraphID+1:]...)
	snapshot.Paragraphs = renumber(next)
	clearAllLabels(snapshot)
	if o.relevance != nil {
		o.relevance.InvalidateParagraphs([]string{string(original)})
	}
	return o.persist(ctx, snapshot)
}

// ReorderParagraphs rearranges the table according to order, which must be
// a permutation of the current ids. Text is unchanged, so readability and
// relevance survive; labels are invalidated for the whole session.
func (o *Orchestrator) ReorderParagraphs(ctx context.Context, sessionID string, order []int) (*models.AnalysisResult, error) {
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	snapshot, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	n := len(snapshot.Paragraphs)
	if len(order) != n {
		return nil, fmt.Errorf("%w: order has %d ids, session has %d paragraphs", ErrInvalidEdit, len(order), n)
	}
	seen := make(map[int]bool, n)
	for _, id := range order {
		if id < 0 || id >= n || seen[id] {
			return nil, fmt.Errorf("%w: order is not a permutation of current ids", ErrInvalidEdit)
		}
		seen[id] = true
	}

	next := make([]models.Paragraph, n)
	for pos, id := range order {
		next[pos] = snapshot.Paragraphs[id]
	}
	snapshot.Paragraphs = renumber(next)
	clearAllLabels(snapshot)
	return o.persist(ctx, snapshot)
}

// DeleteParagraph removes one paragraph, renumbers the table and
// invalidates labels for the whole session.
func (o *Orchestrator) DeleteParagraph(ctx context.Context, sessionID string, paragraphID int) (*models.AnalysisResult, error) {
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	snapshot, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if paragraphID < 0 || paragraphID >= len(snapshot.Paragraphs) {
		return nil, fmt.Errorf("%w: paragraph %d out of range", ErrInvalidEdit, paragraphID)
	}
	removed := snapshot.Paragraphs[paragraphID].Text
	next := make([]models.Paragraph, 0, len(snapshot.Paragraphs)-1)
	next = append(next, snapshot.Paragraphs[:paragraphID]...)
	next = append(next, snapshot.Paragraphs[paragraphID+1:]...)
	snapshot.Paragraphs = renumber(next)
	clearAllLabels(snapshot)
	if o.relevance != nil {
		o.relevance.InvalidateParagraphs([]string{removed})
	}
	return o.persist(ctx, snapshot)
}

// UpdateTopic changes the session topic and recomputes the topic-dependent
// dimensions (relevance and labels). Readability is preserved.
func (o *Orchestrator) UpdateTopic(ctx context.Context, sessionID, topic string) (*models.AnalysisResult, error) {
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	snapshot, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snapshot.Topic = topic
	for i := range snapshot.Paragraphs {
		snapshot.Paragraphs[i].Metrics.ClearRelevance()
		snapshot.Paragraphs[i].Metrics.ClearLabel()
	}
	if err := o.recomputeTopicDims(ctx, snapshot); err != nil {
		return nil, err
	}
	return o.persist(ctx, snapshot)
}

// RefreshLabels re-runs discourse classification for the whole session
// without touching readability or relevance.
func (o *Orchestrator) RefreshLabels(ctx context.Context, sessionID string) (*models.AnalysisResult, error) {
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	snapshot, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	texts := paragraphTexts(snapshot)
	if o.gateway == nil {
		for i := range snapshot.Paragraphs {
			snapshot.Paragraphs[i].Metrics.ClearLabel()
			setUnavailable(&snapshot.Paragraphs[i].Metrics)
		}
		return o.persist(ctx, snapshot)
	}
	outcomes, err := o.gateway.ClassifyAll(ctx, texts, snapshot.Topic)
	if err != nil {
		return nil, err
	}
	for i, out := range outcomes {
		applyOutcome(&snapshot.Paragraphs[i].Metrics, out)
	}
	return o.persist(ctx, snapshot)
}

// Result returns the merged view of an existing session.
func (o *Orchestrator) Result(ctx context.Context, sessionID string) (*models.AnalysisResult, error) {
	snapshot, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return buildResult(snapshot), nil
}

// Snapshot returns the raw persisted state of a session.
func (o *Orchestrator) Snapshot(ctx context.Context, sessionID string) (*models.Snapshot, error) {
	return o.load(ctx, sessionID)
}

// DeleteSession removes a session from the store.
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID string) error {
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	err := o.store.Delete(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return ErrSessionNotFound
	}
	o.locksMu.Lock()
	delete(o.locks, sessionID)
	o.locksMu.Unlock()
	return err
}

// recomputeTopicDims fills relevance and labels for every paragraph against
// the snapshot's current topic, concurrently, tolerating partial failure.
func (o *Orchestrator) recomputeTopicDims(ctx context.Context, snapshot *models.Snapshot) error {
	texts := paragraphTexts(snapshot)
	fresh, err := o.analyzeParagraphs(ctx, texts, snapshot.Topic)
	if err != nil {
		return err
	}
	for i := range snapshot.Paragraphs {
		snapshot.Paragraphs[i].Metrics.Relevance = fresh[i].Metrics.Relevance
		snapshot.Paragraphs[i].Metrics.Label = fresh[i].Metrics.Label
		snapshot.Paragraphs[i].Metrics.LabelMethod = fresh[i].Metrics.LabelMethod
		snapshot.Paragraphs[i].Metrics.LabelError = fresh[i].Metrics.LabelError
	}
	return nil
}

// analyzeMerged computes readability and relevance for restructured text.
// Labels are not computed here: structural edits invalidate them for the
// whole session and they return on the next refresh.
func (o *Orchestrator) analyzeMerged(ctx context.Context, text, topic string) (models.Paragraph, error) {
	p := models.Paragraph{Text: text}
	scores := readability.Analyze(text)
	p.Metrics.LIX = scores.LIX
	p.Metrics.SMOG = scores.SMOG
	p.Metrics.Complexity = scores.Complexity

	if o.relevance != nil && o.relevance.Ready() {
		score, err := o.relevance.Score(ctx, text, topic)
		if err != nil {
			if ctx.Err() != nil {
				return models.Paragraph{}, ctx.Err()
			}
			o.logger.Warn("relevance failed for restructured paragraph", zap.Error(err))
		} else {
			p.Metrics.Relevance = &score
		}
	}
	return p, nil
}

func (o *Orchestrator) load(ctx context.Context, sessionID string) (*models.Snapshot, error) {
	snapshot, err := o.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (o *Orchestrator) persist(ctx context.Context, snapshot *models.Snapshot) (*models.AnalysisResult, error) {
	snapshot.UpdatedAt = time.Now().UTC()
	if err := o.store.Save(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return buildResult(snapshot), nil
}

// mergeTexts joins two paragraph bodies the way the editor presents them:
// single newline between them, internal blank lines collapsed.
func mergeTexts(a, b string) string {
	joined := strings.TrimRight(a, " \t\n") + "\n" + strings.TrimLeft(b, " \t\n")
	// Runs of three or more newlines need repeated passes to collapse.
	for strings.Contains(joined, "\n\n") {
		joined = strings.ReplaceAll(joined, "\n\n", "\n")
	}
	return strings.TrimSpace(joined)
}

func renumber(paragraphs []models.Paragraph) []models.Paragraph {
	for i := range paragraphs {
		paragraphs[i].ID = i
	}
	return paragraphs
}

func clearAllLabels(snapshot *models.Snapshot) {
	for i := range snapshot.Paragraphs {
		snapshot.Paragraphs[i].Metrics.ClearLabel()
	}
}

func paragraphTexts(snapshot *models.Snapshot) []string {
	texts := make([]string, len(snapshot.Paragraphs))
	for i, p := range snapshot.Paragraphs {
		texts[i] = p.Text
	}
	return texts
}

func applyOutcome(m *models.Metrics, out gateway.ChunkOutcome) {
	label := out.Label
	m.Label = &label
	m.LabelMethod = out.Method
	m.LabelError = out.Err
}

func setUnavailable(m *models.Metrics) {
	label := classify.SentinelUnavailableAPI
	m.Label = &label
	m.LabelMethod = models.MethodFailed
	m.LabelError = "classification gateway not configured"
}
