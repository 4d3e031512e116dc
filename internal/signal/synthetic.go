package signal

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// SyntheticGenerator produces plausible nearby signals for the degraded
// read path when the store is unreachable. Generated items carry
// SourceSynthetic so they can never be mistaken for real reports, and they
// are never persisted.
type SyntheticGenerator struct {
	rnd *rand.Rand
}

// NewSyntheticGenerator creates a generator seeded from the clock. Tests
// can pass a fixed seed via NewSeededSyntheticGenerator.
func NewSyntheticGenerator() *SyntheticGenerator {
	return NewSeededSyntheticGenerator(time.Now().UnixNano())
}

// NewSeededSyntheticGenerator creates a generator with a fixed seed.
func NewSeededSyntheticGenerator(seed int64) *SyntheticGenerator {
	return &SyntheticGenerator{rnd: rand.New(rand.NewSource(seed))}
}

type syntheticPreset struct {
	title  string
	level  int
	descs  []string
	source Source
}

var syntheticPresets = []syntheticPreset{
	{title: "화재 의심", level: 5, descs: []string{"불꽃과 연기 관측", "사이렌 소리와 연기 발생", "주택가 화재 신고 다수"}, source: SourceAI},
	{title: "폭행/소란", level: 4, descs: []string{"큰 소리 다툼", "주변 상점 피해 우려", "경찰 출동 요청 발생"}, source: SourceUser},
	{title: "교통사고", level: 4, descs: []string{"차량 2대 충돌", "경미한 부상자 발생", "차량 정체 심함"}, source: SourceUser},
	{title: "도난/절도 의심", level: 3, descs: []string{"자전거 도난 신고", "상점 절도 시도", "수상한 배회자"}, source: SourceUser},
	{title: "수상한 인물", level: 2, descs: []string{"주택가 배회", "사진 촬영 반복", "창문 너머 관찰 정황"}, source: SourceUser},
	{title: "낙상/추락 위험", level: 2, descs: []string{"공사장 가림막 파손", "보행자 주의 필요", "안전표지 미비"}, source: SourceSeed},
}

var syntheticRoads = []string{
	"세종대로", "종로", "충무로", "퇴계로", "을지로", "한강대로",
	"올림픽로", "강남대로", "테헤란로", "도산대로", "양재대로", "방배로",
}

// Generate produces between 6 and 11 signals uniformly distributed on the
// disc of radiusKM around center, aged within windowDays. All items have
// Source set to SourceSynthetic.
func (g *SyntheticGenerator) Generate(center Point, radiusKM float64, windowDays int) []*Signal {
	count := 6 + g.rnd.Intn(6)
	now := time.Now()
	cosLat := math.Cos(center.Lat * math.Pi / 180)

	items := make([]*Signal, 0, count)
	for i := 0; i < count; i++ {
		// r = R*sqrt(u) gives a uniform disc distribution.
		rKM := radiusKM * math.Sqrt(g.rnd.Float64())
		theta := g.rnd.Float64() * 2 * math.Pi
		dLat := rKM * math.Cos(theta) / 111
		dLng := 0.0
		if cosLat != 0 {
			dLng = rKM * math.Sin(theta) / (111 * cosLat)
		}

		p := syntheticPresets[g.rnd.Intn(len(syntheticPresets))]
		road := syntheticRoads[g.rnd.Intn(len(syntheticRoads))]
		addr := fmt.Sprintf("%s %d", road, 1+g.rnd.Intn(200))
		if g.rnd.Float64() < 0.6 {
			addr = fmt.Sprintf("%s %d길 %d", road, 1+g.rnd.Intn(30), 1+g.rnd.Intn(200))
		}

		ageMin := g.rnd.Intn(windowDays * 24 * 60)
		createdAt := now.Add(-time.Duration(ageMin) * time.Minute)
		rel := fmt.Sprintf("%d분 전", ageMin)
		if ageMin >= 60 {
			rel = fmt.Sprintf("%d시간 전", ageMin/60)
		}

		score := p.level*20 - ageMin/10 + g.rnd.Intn(8)
		if score < 0 {
			score = 0
		}

		items = append(items, &Signal{
			ID:          fmt.Sprintf("mock-%d-%d", now.UnixMilli(), i),
			Title:       p.title,
			Description: fmt.Sprintf("%s · %s", p.descs[g.rnd.Intn(len(p.descs))], rel),
			Severity:    p.level,
			Location: Location{
				Lat:     center.Lat + dLat,
				Lng:     center.Lng + dLng,
				Address: addr,
			},
			Score:     score,
			Status:    StatusActive,
			Source:    SourceSynthetic,
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		})
	}
	return items
}
