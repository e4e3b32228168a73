package voiceprint

import "math"

// CosineSimilarity вычисляет косинусное сходство между двумя векторами
// Нормализация выполняется внутри, пре-нормализация не требуется
// Аккумуляция в float64 по возрастанию индекса для воспроизводимости
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// FindClosest ищет enrollment с максимальным сходством к centroid
// Возвращает nil если хранилище пусто. Используется при записи нового
// профиля для предупреждения о почти-дубликате
func FindClosest(store *Store, centroid []float32) (*Enrollment, float32) {
	enrollments := store.GetAll()
	if len(enrollments) == 0 {
		return nil, 0
	}

	best := -1
	bestSim := float32(-1)
	for i := range enrollments {
		sim := CosineSimilarity(centroid, enrollments[i].Centroid)
		if sim > bestSim {
			bestSim = sim
			best = i
		}
	}

	e := enrollments[best]
	return &e, bestSim
}
