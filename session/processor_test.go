package session

import (
	"errors"
	"testing"

	"phrasecast/ai"
)

// fakeRecognizer выдаёт заранее заданные результаты по порядку вызовов
// и запоминает полученное аудио каждого вызова
type fakeRecognizer struct {
	words    [][]ai.Word
	errs     []error
	calls    int
	received [][]float32
}

func (f *fakeRecognizer) RecognizeWords(samples []float32) ([]ai.Word, error) {
	i := f.calls
	f.calls++
	f.received = append(f.received, samples)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(f.words) {
		return f.words[i], nil
	}
	return nil, nil
}

func (f *fakeRecognizer) Close()       {}
func (f *fakeRecognizer) Name() string { return "fake" }

// fakeEncoder отдаёт один и тот же тензор или ошибку
type fakeEncoder struct {
	tensor *ai.FrameTensor
	err    error
}

func (f *fakeEncoder) Frames(samples []float32) (*ai.FrameTensor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tensor, nil
}

func (f *fakeEncoder) Encode(samples []float32) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tensor.MeanPool(0, f.tensor.NumFrames), nil
}

func (f *fakeEncoder) Close() {}

// uniformTensor тензор где каждый фрейм равен value (одно измерение)
func uniformTensor(numFrames int, value float32) *ai.FrameTensor {
	data := make([]float32, numFrames)
	for i := range data {
		data[i] = value
	}
	return &ai.FrameTensor{NumFrames: numFrames, Dim: 1, Data: data}
}

// samples16k генерирует len секунд тишины на 16 кГц
func samples16k(seconds float64) []float32 {
	return make([]float32, int(seconds*16000))
}

// constSamples генерирует seconds секунд аудио с постоянным значением
func constSamples(seconds float64, value float32) []float32 {
	samples := make([]float32, int(seconds*16000))
	for i := range samples {
		samples[i] = value
	}
	return samples
}

// TestProcessChunkPipeline полный прогон: слова -> фразы -> спикеры,
// таймстемпы второго чанка ребейзятся на точку разреза первого
func TestProcessChunkPipeline(t *testing.T) {
	rec := &fakeRecognizer{
		words: [][]ai.Word{
			{
				{Text: "привет", Start: 0.1, End: 0.5},
				{Text: "мир", Start: 0.6, End: 1.0},
				{Text: "хвост", Start: 1.5, End: 1.9},
			},
			{
				// Второй чанк начинается с переноса: локальные таймстемпы
				{Text: "хвост", Start: 0.0, End: 0.4},
				{Text: "снова", Start: 0.5, End: 0.9},
			},
		},
	}
	enc := &fakeEncoder{tensor: uniformTensor(20, 1)}

	p := NewProcessor(DefaultProcessorConfig(), rec, enc)

	// Чанк 0, не финальный: слово "хвост" уходит в перенос
	r0, err := p.ProcessChunk(samples16k(2.0), false)
	if err != nil {
		t.Fatalf("chunk 0: %v", err)
	}
	if r0.Index != 0 {
		t.Errorf("chunk index %d", r0.Index)
	}
	if r0.SplitPoint != 1.0 {
		t.Errorf("split point %.2f, want 1.0 (end of second-to-last word)", r0.SplitPoint)
	}
	if r0.CarryoverDuration != 0 {
		t.Errorf("first chunk carryover %.2f, want 0", r0.CarryoverDuration)
	}
	if len(r0.Phrases) != 1 {
		t.Fatalf("expected 1 phrase, got %d", len(r0.Phrases))
	}
	if got := r0.Phrases[0].Text(); got != "привет мир" {
		t.Errorf("phrase text %q", got)
	}
	if r0.Phrases[0].Reason != ai.ReasonNewSpeaker {
		t.Errorf("first phrase reason %s", r0.Phrases[0].Reason)
	}

	// Финальный чанк: всё финализируется, таймстемпы сдвинуты на 1.0
	r1, err := p.ProcessChunk(samples16k(1.0), true)
	if err != nil {
		t.Fatalf("chunk 1: %v", err)
	}
	if r1.CarryoverDuration != 1.0 {
		t.Errorf("second chunk offset %.2f, want 1.0", r1.CarryoverDuration)
	}
	if len(r1.Phrases) != 1 {
		t.Fatalf("expected 1 phrase, got %d", len(r1.Phrases))
	}
	ph := r1.Phrases[0]
	if ph.Start != 1.0 || ph.Words[0].Start != 1.0 {
		t.Errorf("timestamps not rebased: start %.2f, word start %.2f", ph.Start, ph.Words[0].Start)
	}
	if ph.SpeakerID != r0.Phrases[0].SpeakerID {
		t.Errorf("same voice split across chunks: IDs %d != %d", ph.SpeakerID, r0.Phrases[0].SpeakerID)
	}
}

// TestProcessChunkAudioCarryover аудио после точки разреза уходит
// в следующий чанк: перенесённое слово распознаётся заново из новой
// позиции, таймстемпы не дрейфуют на длину переноса
func TestProcessChunkAudioCarryover(t *testing.T) {
	rec := &fakeRecognizer{
		words: [][]ai.Word{
			{
				{Text: "раз", Start: 0.0, End: 0.5},
				{Text: "два", Start: 0.5, End: 1.0},
				{Text: "хвост", Start: 1.5, End: 2.0},
			},
			{
				// Локальное время чанка 1 отсчитывается от точки разреза 1.0
				{Text: "хвост", Start: 0.5, End: 1.0},
				{Text: "три", Start: 1.5, End: 2.0},
				{Text: "четыре", Start: 2.25, End: 2.75},
			},
			{
				{Text: "четыре", Start: 0.25, End: 0.75},
			},
		},
	}
	p := NewProcessor(DefaultProcessorConfig(), rec, nil)

	// Чанк 0: 2.0s, разрез на 1.0 - последняя секунда уходит в перенос
	r0, err := p.ProcessChunk(constSamples(2.0, 1), false)
	if err != nil {
		t.Fatalf("chunk 0: %v", err)
	}
	if r0.SplitPoint != 1.0 {
		t.Fatalf("split point %.2f, want 1.0", r0.SplitPoint)
	}

	// Чанк 1: к новым 2.0s подклеивается 1.0s переноса
	r1, err := p.ProcessChunk(constSamples(2.0, 2), false)
	if err != nil {
		t.Fatalf("chunk 1: %v", err)
	}
	if got := len(rec.received[1]); got != 48000 {
		t.Fatalf("chunk 1 recognized %d samples, want 48000 (1s carryover + 2s new)", got)
	}
	if rec.received[1][0] != 1 || rec.received[1][16000] != 2 {
		t.Error("carryover audio must precede the new samples")
	}

	// Перенесённое слово финализировано на реальной позиции
	if len(r1.Phrases) != 2 {
		t.Fatalf("expected 2 phrases, got %d", len(r1.Phrases))
	}
	if got := r1.Phrases[0].Text(); got != "хвост" {
		t.Errorf("carried word not re-emitted: %q", got)
	}
	if r1.Phrases[0].Start != 1.5 || r1.Phrases[1].Start != 2.5 {
		t.Errorf("timestamps drifted: %.2f, %.2f, want 1.5, 2.5",
			r1.Phrases[0].Start, r1.Phrases[1].Start)
	}
	if r1.SplitPoint != 2.0 {
		t.Errorf("chunk 1 split %.2f, want 2.0", r1.SplitPoint)
	}

	// Финальный чанк: перенос 1.0s + 1.0s новых, ничего не теряется
	r2, err := p.ProcessChunk(constSamples(1.0, 3), true)
	if err != nil {
		t.Fatalf("chunk 2: %v", err)
	}
	if got := len(rec.received[2]); got != 32000 {
		t.Fatalf("final chunk recognized %d samples, want 32000", got)
	}
	if len(r2.Phrases) != 1 || r2.Phrases[0].Words[0].Start != 3.25 {
		t.Errorf("final word misplaced: %+v", r2.Phrases)
	}
}

// TestProcessChunkFewWordsCarriesAll чанк с одним словом целиком
// уходит в перенос и возвращается со следующим чанком
func TestProcessChunkFewWordsCarriesAll(t *testing.T) {
	rec := &fakeRecognizer{
		words: [][]ai.Word{
			{{Text: "обрывок", Start: 0.5, End: 0.9}},
			{{Text: "обрывок", Start: 0.5, End: 0.9}, {Text: "целиком", Start: 1.1, End: 1.6}},
		},
	}
	p := NewProcessor(DefaultProcessorConfig(), rec, nil)

	r0, err := p.ProcessChunk(constSamples(1.0, 1), false)
	if err != nil {
		t.Fatalf("chunk 0: %v", err)
	}
	if len(r0.Phrases) != 0 || r0.SplitPoint != 0 {
		t.Fatalf("single word must be carried whole: %d phrases, split %.2f",
			len(r0.Phrases), r0.SplitPoint)
	}

	// Весь первый чанк вернулся: аудио не потеряно
	r1, err := p.ProcessChunk(constSamples(1.0, 2), true)
	if err != nil {
		t.Fatalf("chunk 1: %v", err)
	}
	if got := len(rec.received[1]); got != 32000 {
		t.Fatalf("chunk 1 recognized %d samples, want 32000 (whole chunk carried)", got)
	}
	if rec.received[1][0] != 1 {
		t.Error("carried chunk audio lost")
	}
	if len(r1.Phrases) != 1 || r1.Phrases[0].Words[0].Start != 0.5 {
		t.Errorf("carried word misplaced: %+v", r1.Phrases)
	}
}

// TestProcessChunkASRError ошибка распознавания чанк-локальна:
// возвращается ChunkError, кластеризатор не меняется
func TestProcessChunkASRError(t *testing.T) {
	boom := errors.New("engine crashed")
	rec := &fakeRecognizer{
		errs: []error{boom},
		words: [][]ai.Word{
			nil,
			{{Text: "после", Start: 0.0, End: 0.6}},
		},
	}
	p := NewProcessor(DefaultProcessorConfig(), rec, &fakeEncoder{tensor: uniformTensor(10, 1)})

	_, err := p.ProcessChunk(samples16k(1.0), false)
	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("expected *ChunkError, got %v", err)
	}
	if chunkErr.Index != 0 || chunkErr.Stage != "asr" {
		t.Errorf("chunk error %+v", chunkErr)
	}
	if !errors.Is(err, boom) {
		t.Error("ChunkError should wrap the cause")
	}
	if p.Clusterer().SpeakerCount() != 0 {
		t.Error("failed chunk must not touch the clusterer")
	}

	// Следующий чанк обрабатывается как ни в чём не бывало
	r, err := p.ProcessChunk(samples16k(1.0), true)
	if err != nil {
		t.Fatalf("recovery chunk: %v", err)
	}
	if r.Index != 1 {
		t.Errorf("index after failed chunk: %d", r.Index)
	}
}

// TestProcessChunkDegraded сбой акустической модели не фатален:
// фразы выходят без embeddings с reason=no_embedding
func TestProcessChunkDegraded(t *testing.T) {
	rec := &fakeRecognizer{
		words: [][]ai.Word{{{Text: "слово", Start: 0.0, End: 0.8}}},
	}
	p := NewProcessor(DefaultProcessorConfig(), rec, &fakeEncoder{err: errors.New("onnx failed")})

	r, err := p.ProcessChunk(samples16k(1.0), true)
	if err != nil {
		t.Fatalf("degraded chunk should not fail: %v", err)
	}
	if len(r.Phrases) != 1 {
		t.Fatalf("expected 1 phrase, got %d", len(r.Phrases))
	}
	if r.Phrases[0].Reason != ai.ReasonNoEmbedding {
		t.Errorf("reason %s, want no_embedding", r.Phrases[0].Reason)
	}
	if r.Phrases[0].Embedding != nil {
		t.Error("degraded phrase should have nil embedding")
	}
}

// TestProcessorNilEncoder процессор без акустической модели работает
// в degraded режиме с самого начала
func TestProcessorNilEncoder(t *testing.T) {
	rec := &fakeRecognizer{
		words: [][]ai.Word{{{Text: "слово", Start: 0.0, End: 0.8}}},
	}
	p := NewProcessor(DefaultProcessorConfig(), rec, nil)

	r, err := p.ProcessChunk(samples16k(1.0), true)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if r.Phrases[0].Reason != ai.ReasonNoEmbedding {
		t.Errorf("reason %s", r.Phrases[0].Reason)
	}
}

// TestProcessorReset сброс начинает сессию заново
func TestProcessorReset(t *testing.T) {
	rec := &fakeRecognizer{
		words: [][]ai.Word{
			{{Text: "a", Start: 0.0, End: 0.5}, {Text: "b", Start: 0.6, End: 1.0}, {Text: "c", Start: 1.2, End: 1.8}},
			{{Text: "d", Start: 0.0, End: 0.5}},
		},
	}
	p := NewProcessor(DefaultProcessorConfig(), rec, &fakeEncoder{tensor: uniformTensor(10, 1)})

	if _, err := p.ProcessChunk(samples16k(2.0), false); err != nil {
		t.Fatal(err)
	}
	p.Reset(false)

	if p.Carryover().Offset() != 0 {
		t.Error("reset should clear carryover")
	}
	r, err := p.ProcessChunk(samples16k(1.0), true)
	if err != nil {
		t.Fatal(err)
	}
	if r.Index != 0 {
		t.Errorf("chunk index after reset: %d", r.Index)
	}
	if r.CarryoverDuration != 0 {
		t.Errorf("offset after reset: %.2f", r.CarryoverDuration)
	}
}
