package clarification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"legal-ai-cuda/internal/domain"
	"legal-ai-cuda/internal/router"
)

type stubQuestions struct {
	collections []string
	docs        map[string][]string
	titles      map[string]string
	questions   map[string][]domain.RouterQuestion // "collection/doc" -> questions
	main        map[string]domain.RouterQuestion    // collection -> sample question
	similar     map[string][]router.DocSimilarity   // "collection/doc" -> ranked alternatives
}

func (s stubQuestions) Collections() []string                    { return s.collections }
func (s stubQuestions) DocumentsOf(collectionID string) []string { return s.docs[collectionID] }

func (s stubQuestions) DocTitle(collectionID, docID string) (string, bool) {
	t, ok := s.titles[collectionID+"/"+docID]
	return t, ok
}

func (s stubQuestions) QuestionsOf(collectionID, docID string) []domain.RouterQuestion {
	return s.questions[collectionID+"/"+docID]
}

func (s stubQuestions) MainQuestion(collectionID string) (domain.RouterQuestion, bool) {
	q, ok := s.main[collectionID]
	return q, ok
}

func (s stubQuestions) SimilarDocuments(collectionID, candidateDocID string) []router.DocSimilarity {
	return s.similar[collectionID+"/"+candidateDocID]
}

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func TestEnter_L2OffersCandidateDocumentsOwnQuestionsByPriority(t *testing.T) {
	e := New(stubQuestions{
		questions: map[string][]domain.RouterQuestion{
			"ho_tich/khai_sinh": {
				{ID: "q1", Text: "khai sinh can gi", PriorityScore: 0.4},
				{ID: "q2", Text: "thu tuc dang ky khai sinh", PriorityScore: 0.9},
				{ID: "q3", Text: "Thu Tuc Dang Ky Khai Sinh", PriorityScore: 0.8}, // near-dup of q2
			},
		},
	})
	decision := router.RouteDecision{
		Status: router.StatusClarificationNeeded, ClarificationLevel: domain.LevelL2,
		TargetCollection: "ho_tich", TargetDocID: "khai_sinh",
	}
	state := e.Enter(decision, "khai sinh cần gì", fixedNow)

	require.Equal(t, domain.LevelL2, state.Level)
	// q2 and q3 dedup to one (same text once lowercased/trimmed), leaving q2 + q1 + "other".
	require.Len(t, state.OfferedOptions, 3)
	require.Equal(t, "thu tuc dang ky khai sinh", state.OfferedOptions[0].Title)
	require.Equal(t, "confirm_document", state.OfferedOptions[0].Action)
	require.Equal(t, "khai sinh can gi", state.OfferedOptions[1].Title)
	require.Equal(t, "other", state.OfferedOptions[2].ID)
}

func TestEnter_L2FallsBackWhenCandidateHasNoQuestions(t *testing.T) {
	e := New(stubQuestions{titles: map[string]string{"ho_tich/khai_sinh": "Đăng ký khai sinh"}})
	decision := router.RouteDecision{
		Status: router.StatusClarificationNeeded, ClarificationLevel: domain.LevelL2,
		TargetCollection: "ho_tich", TargetDocID: "khai_sinh",
	}
	state := e.Enter(decision, "khai sinh cần gì", fixedNow)
	require.Len(t, state.OfferedOptions, 2)
	require.Equal(t, "confirm_document", state.OfferedOptions[0].Action)
	require.Equal(t, "other", state.OfferedOptions[1].ID)
}

func TestAdvance_ConfirmDocumentReachesAnswerReady(t *testing.T) {
	e := New(stubQuestions{})
	state := domain.ClarificationState{Level: domain.LevelL2, OriginalQuery: "q"}
	next := e.Advance(state, domain.ClarificationOption{Action: "confirm_document", Collection: "ho_tich", Document: "khai_sinh"}, fixedNow)
	require.True(t, IsAnswerReady(next))
	require.Equal(t, "khai_sinh", next.CandidateDocID)
}

func TestAdvance_EscalateL3RanksBySimilarityToCandidateTitle(t *testing.T) {
	e := New(stubQuestions{
		similar: map[string][]router.DocSimilarity{
			"ho_tich/khai_sinh": {
				{DocID: "cai_chinh_ho_tich", Title: "Cải chính hộ tịch", Score: 0.62, IsCore: true},
				{DocID: "ket_hon", Title: "Đăng ký kết hôn", Score: 0.31},
			},
		},
	})
	state := domain.ClarificationState{Level: domain.LevelL2, OriginalQuery: "q", CandidateDocID: "khai_sinh"}
	next := e.Advance(state, domain.ClarificationOption{Action: "escalate_l3", Collection: "ho_tich"}, fixedNow)

	require.Equal(t, domain.LevelL3, next.Level)
	require.Len(t, next.OfferedOptions, 2)
	require.Equal(t, "cai_chinh_ho_tich", next.OfferedOptions[0].Document)
	require.Equal(t, 0.62, next.OfferedOptions[0].Score)
}

func TestAdvance_SelectCollectionMovesToL3WithoutSimilarityReference(t *testing.T) {
	e := New(stubQuestions{docs: map[string][]string{"ho_tich": {"ket_hon", "khai_sinh"}}})
	state := domain.ClarificationState{Level: domain.LevelL1, OriginalQuery: "q"}
	next := e.Advance(state, domain.ClarificationOption{Action: "select_collection", Collection: "ho_tich"}, fixedNow)
	require.Equal(t, domain.LevelL3, next.Level)
	require.Len(t, next.OfferedOptions, 2)
	require.Equal(t, "ket_hon", next.OfferedOptions[0].Document)
}

func TestCollectionOptions_FiltersByScoreAndOrdersDescending(t *testing.T) {
	e := New(stubQuestions{
		collections: []string{"ho_tich", "dat_dai", "giao_thong"},
		main: map[string]domain.RouterQuestion{
			"ho_tich":  {Text: "thu tuc khai sinh"},
			"dat_dai":  {Text: "thu tuc cap giay chung nhan dat"},
		},
	})
	decision := router.RouteDecision{
		ClarificationLevel: domain.LevelL4,
		AllScores:          map[string]float64{"ho_tich": 0.55, "dat_dai": 0.21, "giao_thong": 0.10},
	}
	state := e.Enter(decision, "q", fixedNow)

	require.Equal(t, domain.LevelL4, state.Level)
	require.Len(t, state.OfferedOptions, 2) // giao_thong's 0.10 doesn't clear the 0.20 bar
	require.Equal(t, "ho_tich", state.OfferedOptions[0].Collection)
	require.Equal(t, "thu tuc khai sinh", state.OfferedOptions[0].Title)
	require.Equal(t, "dat_dai", state.OfferedOptions[1].Collection)
}

func TestCollectionOptions_FallsBackToEveryCollectionWhenNoneScored(t *testing.T) {
	e := New(stubQuestions{collections: []string{"ho_tich", "dat_dai"}})
	state := domain.ClarificationState{Level: domain.LevelL4, OriginalQuery: "q"}
	next := e.escalateToL4(state, fixedNow)
	require.Len(t, next.OfferedOptions, 2)
}

func TestAdvance_EscalateL3WithNoAlternativesFallsBackToL4(t *testing.T) {
	e := New(stubQuestions{collections: []string{"ho_tich", "ket_hon"}})
	state := domain.ClarificationState{Level: domain.LevelL2, OriginalQuery: "q"}
	next := e.Advance(state, domain.ClarificationOption{Action: "escalate_l3", Collection: "empty_collection"}, fixedNow)
	require.Equal(t, domain.LevelL4, next.Level)
	require.Len(t, next.OfferedOptions, 2)
}
