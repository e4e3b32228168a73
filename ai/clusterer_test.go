package ai

import (
	"testing"

	"phrasecast/voiceprint"
)

// unitVec единичный вектор с единицей в позиции i
func unitVec(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

// TestAssignSameSpeaker повторный embedding того же голоса получает
// тот же ID с уверенным совпадением
func TestAssignSameSpeaker(t *testing.T) {
	c := NewSpeakerClusterer(ClustererConfig{})

	e := unitVec(512, 0)

	first := c.AssignSpeaker(e, false)
	if first.Reason != ReasonNewSpeaker {
		t.Fatalf("first assignment: expected new_speaker, got %s", first.Reason)
	}
	if first.SpeakerID != 0 {
		t.Fatalf("first speaker should get ID 0, got %d", first.SpeakerID)
	}

	second := c.AssignSpeaker(e, false)
	if second.Reason != ReasonConfidentMatch {
		t.Errorf("second assignment: expected confident_match, got %s", second.Reason)
	}
	if second.SpeakerID != first.SpeakerID {
		t.Errorf("same voice got different IDs: %d != %d", first.SpeakerID, second.SpeakerID)
	}
	if second.Similarity < 0.999 {
		t.Errorf("identical vectors: similarity %.4f, expected ~1.0", second.Similarity)
	}
}

// TestAssignDistinctSpeakers ортогональные голоса получают ID 0 и 1
func TestAssignDistinctSpeakers(t *testing.T) {
	c := NewSpeakerClusterer(ClustererConfig{})

	a := c.AssignSpeaker(unitVec(512, 0), false)
	b := c.AssignSpeaker(unitVec(512, 1), false)

	if a.SpeakerID != 0 || b.SpeakerID != 1 {
		t.Errorf("expected IDs 0 and 1, got %d and %d", a.SpeakerID, b.SpeakerID)
	}
	if b.Reason != ReasonNewSpeaker {
		t.Errorf("orthogonal voice: expected new_speaker, got %s", b.Reason)
	}
}

// TestSpeakerCap при заполненном лимите новый спикер не создаётся:
// фраза либо уходит лучшему кандидату, либо остаётся Unknown
func TestSpeakerCap(t *testing.T) {
	c := NewSpeakerClusterer(ClustererConfig{MaxSpeakers: 2})

	c.AssignSpeaker(unitVec(512, 0), false)
	c.AssignSpeaker(unitVec(512, 1), false)

	// Третий ортогональный голос: сходство 0 с обоими
	third := c.AssignSpeaker(unitVec(512, 2), false)
	if third.SpeakerID != UnknownSpeakerID {
		t.Errorf("orthogonal voice over cap: expected Unknown, got %d", third.SpeakerID)
	}
	if third.Reason != ReasonUnknown {
		t.Errorf("expected reason unknown, got %s", third.Reason)
	}
	if c.SpeakerCount() != 2 {
		t.Errorf("cap exceeded: %d speakers", c.SpeakerCount())
	}

	// Голос похожий на первого, но ниже уверенного порога: fallback
	// cos с центроидом 0 = 0.6 (между fallback 0.5 и уверенным 0.75)
	mixed := []float32{0.6, 0.3, 0.742}
	padded := make([]float32, 512)
	copy(padded, mixed)
	fb := c.AssignSpeaker(padded, false)
	if fb.Reason != ReasonBelowThreshold {
		t.Errorf("expected below_threshold, got %s", fb.Reason)
	}
	if fb.SpeakerID != 0 {
		t.Errorf("fallback should pick best candidate 0, got %d", fb.SpeakerID)
	}
}

// TestAssignNoEmbedding nil embedding не ломает вывод: фраза получает
// первого спикера, при пустом состоянии создаётся placeholder
func TestAssignNoEmbedding(t *testing.T) {
	c := NewSpeakerClusterer(ClustererConfig{})

	a := c.AssignSpeaker(nil, false)
	if a.Reason != ReasonNoEmbedding {
		t.Fatalf("expected no_embedding, got %s", a.Reason)
	}
	if a.SpeakerID != 0 {
		t.Errorf("expected speaker 0, got %d", a.SpeakerID)
	}

	// Placeholder принимает первый реальный embedding
	b := c.AssignSpeaker(unitVec(512, 0), false)
	if b.SpeakerID != 0 {
		t.Errorf("placeholder should adopt first embedding, got speaker %d", b.SpeakerID)
	}
	if c.speakers[0].centroid[0] != 1 {
		t.Error("adopted centroid must equal the first embedding")
	}

	// Placeholder не съедает слот лимита: ортогональный embedding
	// после адопции всё ещё создаёт второго спикера
	d := c.AssignSpeaker(unitVec(512, 1), false)
	if d.SpeakerID != 1 || d.Reason != ReasonNewSpeaker {
		t.Errorf("expected new speaker 1 after adoption, got %d (%s)", d.SpeakerID, d.Reason)
	}
}

// TestCentroidRunningMean центроид обновляется бегущим средним,
// enrolled центроиды неизменяемы
func TestCentroidRunningMean(t *testing.T) {
	c := NewSpeakerClusterer(ClustererConfig{SimilarityThreshold: 0.1})

	c.AssignSpeaker([]float32{1, 0}, false)
	// cos((1,0),(1,1)) ~ 0.707 >= 0.1 - совпадение, среднее (1.0, 0.5)
	c.AssignSpeaker([]float32{1, 1}, false)

	got := c.speakers[0].centroid
	want := []float32{1.0, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("centroid[%d] = %.4f, want %.4f", i, got[i], want[i])
		}
	}

	// Enrolled центроид не двигается
	c2 := NewSpeakerClusterer(ClustererConfig{SimilarityThreshold: 0.1})
	c2.ImportEnrolled([]voiceprint.Enrollment{
		{ID: "e1", Name: "Анна", Centroid: []float32{1, 0}},
	})
	a := c2.AssignSpeaker([]float32{1, 1}, false)
	if !a.IsEnrolled {
		t.Fatal("expected match to enrolled speaker")
	}
	if c2.speakers[0].centroid[1] != 0 {
		t.Error("enrolled centroid must stay immutable")
	}
}

// TestTieBreak при равном сходстве побеждает раньше созданный спикер
func TestTieBreak(t *testing.T) {
	c := NewSpeakerClusterer(ClustererConfig{SimilarityThreshold: 0.5})

	c.AssignSpeaker([]float32{1, 0}, false)
	c.AssignSpeaker([]float32{0, 1}, false)

	// (1,1) одинаково похож на оба центроида
	a := c.AssignSpeaker([]float32{1, 1}, false)
	if a.SpeakerID != 0 {
		t.Errorf("tie should resolve to lowest ID, got %d", a.SpeakerID)
	}

	// Импорт ставит enrolled в начало списка, но при равном сходстве
	// всё равно побеждает меньший id, а не позиция
	c2 := NewSpeakerClusterer(ClustererConfig{SimilarityThreshold: 0.5})
	c2.AssignSpeaker([]float32{1, 0}, false) // discovered, id 0
	c2.ImportEnrolled([]voiceprint.Enrollment{
		{ID: "e1", Name: "Анна", Centroid: []float32{1, 0}}, // enrolled, id 1
	})

	b := c2.AssignSpeaker([]float32{1, 0}, false)
	if b.SpeakerID != 0 {
		t.Errorf("tie across list positions should resolve to id 0, got %d", b.SpeakerID)
	}
	if b.IsEnrolled {
		t.Error("tie winner must be the earlier discovered speaker")
	}
}

// TestImportExportEnrolled импорт заменяет enrolled набор целиком,
// не трогая обычных спикеров; экспорт сохраняет исходные ID профилей
func TestImportExportEnrolled(t *testing.T) {
	c := NewSpeakerClusterer(ClustererConfig{})

	// Обычный спикер до импорта
	c.AssignSpeaker(unitVec(8, 0), false)

	c.ImportEnrolled([]voiceprint.Enrollment{
		{ID: "uuid-a", Name: "Анна", Centroid: unitVec(8, 1), ColorIndex: 3},
		{ID: "uuid-b", Name: "Борис", Centroid: nil}, // без центроида - пропуск
	})

	if c.EnrolledCount() != 1 {
		t.Fatalf("expected 1 enrolled (nil centroid skipped), got %d", c.EnrolledCount())
	}
	if c.SpeakerCount() != 2 {
		t.Fatalf("discovered speaker lost on import: %d total", c.SpeakerCount())
	}

	exported := c.ExportEnrolled()
	if len(exported) != 1 || exported[0].ID != "uuid-a" || exported[0].Name != "Анна" {
		t.Errorf("export mismatch: %+v", exported)
	}
	if exported[0].ColorIndex != 3 {
		t.Errorf("color index lost: %d", exported[0].ColorIndex)
	}

	// Повторный импорт полностью заменяет прежний набор
	c.ImportEnrolled([]voiceprint.Enrollment{
		{ID: "uuid-c", Name: "Вера", Centroid: unitVec(8, 2)},
	})
	if c.EnrolledCount() != 1 {
		t.Errorf("re-import should replace, got %d enrolled", c.EnrolledCount())
	}
	if got := c.ExportEnrolled()[0].ID; got != "uuid-c" {
		t.Errorf("stale enrollment survived re-import: %s", got)
	}
}

// TestReset проверяет оба режима сброса
func TestReset(t *testing.T) {
	c := NewSpeakerClusterer(ClustererConfig{})
	c.ImportEnrolled([]voiceprint.Enrollment{
		{ID: "e1", Name: "Анна", Centroid: unitVec(8, 0)},
	})
	c.AssignSpeaker(unitVec(8, 1), false)

	c.Reset(true)
	if c.SpeakerCount() != 1 || c.EnrolledCount() != 1 {
		t.Errorf("Reset(true) should keep enrolled only: %d total, %d enrolled",
			c.SpeakerCount(), c.EnrolledCount())
	}

	c.Reset(false)
	if c.SpeakerCount() != 0 {
		t.Errorf("Reset(false) should clear everything: %d speakers", c.SpeakerCount())
	}

	// После полного сброса нумерация начинается заново
	a := c.AssignSpeaker(unitVec(8, 0), false)
	if a.SpeakerID != 0 {
		t.Errorf("after full reset first speaker should be 0, got %d", a.SpeakerID)
	}
}

// TestSpeakerLabel метки: имя профиля, Speaker N, Unknown
func TestSpeakerLabel(t *testing.T) {
	c := NewSpeakerClusterer(ClustererConfig{})
	c.ImportEnrolled([]voiceprint.Enrollment{
		{ID: "e1", Name: "Анна", Centroid: unitVec(8, 0)},
	})
	a := c.AssignSpeaker(unitVec(8, 1), false)
	b := c.AssignSpeaker(unitVec(8, 2), false)

	if got := c.SpeakerLabel(0); got != "Анна" {
		t.Errorf("enrolled label: got %q", got)
	}
	if got := c.SpeakerLabel(a.SpeakerID); got != "Speaker 1" {
		t.Errorf("first discovered label: got %q", got)
	}
	if got := c.SpeakerLabel(b.SpeakerID); got != "Speaker 2" {
		t.Errorf("second discovered label: got %q", got)
	}
	if got := c.SpeakerLabel(UnknownSpeakerID); got != "Unknown" {
		t.Errorf("sentinel label: got %q", got)
	}
	if got := c.SpeakerLabel(99); got != "Unknown" {
		t.Errorf("missing ID label: got %q", got)
	}

	// Enrolled с пустым именем получает собственную метку,
	// не пересекающуюся с нумерацией discovered спикеров
	c2 := NewSpeakerClusterer(ClustererConfig{})
	c2.ImportEnrolled([]voiceprint.Enrollment{
		{ID: "e2", Centroid: unitVec(8, 0)},
	})
	if got := c2.SpeakerLabel(0); got != "Enrolled 1" {
		t.Errorf("unnamed enrolled label: got %q", got)
	}
}
