package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"legal-ai-cuda/internal/domain"
)

type stubEmbedder struct {
	vectors map[string][]float32
	fallback []float32
}

func (s stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return s.fallback, nil
}

func testConfig() Config {
	return Config{
		HighConfidenceThreshold: 0.80,
		MediumHighThreshold:     0.65,
		MinConfidenceThreshold:  0.50,
		VeryHighConfidenceGate:  0.82,
		MinContextConfidence:    0.78,
	}
}

func question(collectionID, docID, text string, vec []float32) domain.RouterQuestion {
	return domain.RouterQuestion{
		ID: docID + "-q", Text: text, CollectionID: collectionID, DocID: docID,
		Type: domain.QuestionMain, Status: domain.QuestionActive, Embedding: vec,
	}
}

func buildIndex(byCollection map[string]collectionQuestions) *QuestionIndex {
	return &QuestionIndex{byCollection: byCollection, knownEmbeddings: map[string][]float32{}}
}

func TestRoute_HighConfidenceRoutesDirectly(t *testing.T) {
	idx := buildIndex(map[string]collectionQuestions{
		"ho_tich": {
			questions: []domain.RouterQuestion{question("ho_tich", "khai_sinh", "đăng ký khai sinh cần giấy tờ gì", []float32{1, 0, 0})},
			docs:      map[string]docInfo{"khai_sinh": {title: "Đăng ký khai sinh", isCore: true}},
		},
	})
	r := New(stubEmbedder{fallback: []float32{1, 0, 0}}, idx, testConfig())

	d, err := r.Route(context.Background(), "thủ tục khai sinh", &domain.Session{})
	require.NoError(t, err)
	require.Equal(t, StatusRouted, d.Status)
	require.Equal(t, "ho_tich", d.TargetCollection)
	require.Equal(t, "khai_sinh", d.TargetDocID)
	require.False(t, d.WasOverridden)
}

func TestRoute_MediumConfidenceEscalatesToL2(t *testing.T) {
	idx := buildIndex(map[string]collectionQuestions{
		"ho_tich": {
			questions: []domain.RouterQuestion{question("ho_tich", "khai_sinh", "q", []float32{1, 0, 0})},
			docs:      map[string]docInfo{"khai_sinh": {title: "Đăng ký khai sinh ở nước ngoài", isCore: false}},
		},
	})
	// Cosine similarity to the question embedding lands at 0.72 (between
	// MediumHighThreshold and HighConfidenceThreshold) with no title boost,
	// since the query text has nothing to do with the document title.
	r := New(stubEmbedder{fallback: []float32{0.72, 0.694, 0}}, idx, testConfig())

	d, err := r.Route(context.Background(), "something unrelated query text here", &domain.Session{})
	require.NoError(t, err)
	require.Equal(t, StatusClarificationNeeded, d.Status)
	require.Equal(t, domain.LevelL2, d.ClarificationLevel)
}

func TestRoute_LowConfidenceEscalatesToL4(t *testing.T) {
	idx := buildIndex(map[string]collectionQuestions{
		"ho_tich": {
			questions: []domain.RouterQuestion{question("ho_tich", "khai_sinh", "q", []float32{0, 1, 0})},
			docs:      map[string]docInfo{},
		},
	})
	r := New(stubEmbedder{fallback: []float32{1, 0, 0}}, idx, testConfig())

	d, err := r.Route(context.Background(), "hoan toan khong lien quan nhieu tu", &domain.Session{})
	require.NoError(t, err)
	require.Equal(t, StatusClarificationNeeded, d.Status)
	require.Equal(t, domain.LevelL4, d.ClarificationLevel)
}

func TestRoute_TitleBoostPromotesCoreProcedure(t *testing.T) {
	idx := buildIndex(map[string]collectionQuestions{
		"ho_tich": {
			questions: []domain.RouterQuestion{question("ho_tich", "khai_sinh_lai", "q1", []float32{0.9, 0.1, 0})},
			docs:      map[string]docInfo{"khai_sinh_lai": {title: "Đăng ký lại khai sinh", isCore: false}},
		},
		"ket_hon": {
			questions: []domain.RouterQuestion{question("ket_hon", "khai_sinh_core", "q2", []float32{0.85, 0.1, 0})},
			docs:      map[string]docInfo{"khai_sinh_core": {title: "Đăng ký khai sinh", isCore: true}},
		},
	})
	r := New(stubEmbedder{fallback: []float32{1, 0, 0}}, idx, testConfig())

	// Query substring-matches ket_hon's title ("Đăng ký khai sinh") but not
	// ho_tich's ("Đăng ký lại khai sinh", which has "lại" in the middle), so
	// only ket_hon qualifies for the title boost at all.
	d, err := r.Route(context.Background(), "Tôi muốn đăng ký khai sinh cho con của tôi", &domain.Session{})
	require.NoError(t, err)
	// ket_hon starts lower but gets the core boost (+0.3) vs ho_tich's
	// unboosted (title mismatch) score, so it should win after boosting.
	require.Equal(t, "ket_hon", d.TargetCollection)
}

func TestRoute_FollowUpShortCircuitsToSession(t *testing.T) {
	idx := buildIndex(map[string]collectionQuestions{})
	r := New(stubEmbedder{fallback: []float32{1, 0, 0}}, idx, testConfig())

	sess := &domain.Session{
		LastSuccessfulCollection: "ho_tich",
		LastSuccessfulDocID:      "khai_sinh",
		LastSuccessfulConfidence: 0.9,
	}
	d, err := r.Route(context.Background(), "còn phí bao nhiêu", sess)
	require.NoError(t, err)
	require.Equal(t, StatusRouted, d.Status)
	require.Equal(t, "ho_tich", d.TargetCollection)
	require.Equal(t, "khai_sinh", d.TargetDocID)
	require.InDelta(t, 0.85, d.Confidence, 1e-9)
	require.False(t, d.WasOverridden)
}

func TestRoute_StatefulOverrideReportsMax85(t *testing.T) {
	idx := buildIndex(map[string]collectionQuestions{
		"ket_hon": {
			questions: []domain.RouterQuestion{question("ket_hon", "dk_ket_hon", "q", []float32{0, 1, 0})},
			docs:      map[string]docInfo{},
		},
	})
	r := New(stubEmbedder{fallback: []float32{0.9, 0.1, 0}}, idx, testConfig())

	sess := &domain.Session{
		LastSuccessfulCollection: "ho_tich",
		LastSuccessfulDocID:      "khai_sinh",
		LastSuccessfulConfidence: 0.9,
	}
	d, err := r.Route(context.Background(), "a long enough query so it is not a short follow up by token count", sess)
	require.NoError(t, err)
	require.True(t, d.WasOverridden)
	require.Equal(t, StatusRouted, d.Status)
	require.Equal(t, "ho_tich", d.TargetCollection)
	require.InDelta(t, 0.85, d.Confidence, 1e-9)
	require.Less(t, d.OriginalConfidence, 0.82)
}

func TestRoute_NoMatchWhenIndexEmpty(t *testing.T) {
	idx := buildIndex(map[string]collectionQuestions{})
	r := New(stubEmbedder{fallback: []float32{1, 0, 0}}, idx, testConfig())

	d, err := r.Route(context.Background(), "a long enough query so it is not a short follow up by token count", &domain.Session{})
	require.NoError(t, err)
	require.Equal(t, StatusNoMatch, d.Status)
	require.True(t, d.NoMatch)
}
