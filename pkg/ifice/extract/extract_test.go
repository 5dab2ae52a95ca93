package extract

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/cognicore/ifice/pkg/ifice/config"
	"github.com/cognicore/ifice/pkg/ifice/ingest"
	"github.com/cognicore/ifice/pkg/ifice/internalerr"
	"github.com/cognicore/ifice/pkg/ifice/signals"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	tax, err := config.DefaultTaxonomy()
	if err != nil {
		t.Fatalf("taxonomy: %v", err)
	}
	idx, err := NewIndex(tax)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	return idx
}

func weights() config.Weights {
	return config.DefaultEngine().Weights
}

func codes(sigs []signals.Signal) []string {
	out := make([]string, len(sigs))
	for i, s := range sigs {
		out[i] = s.Code
	}
	return out
}

func TestMatcherLeftmostLongest(t *testing.T) {
	m := newMatcher()
	m.add("浙江", Entry{Kind: KindProvince, Code: "ZJ"})
	m.add("江西", Entry{Kind: KindProvince, Code: "JX"})
	m.add("西湖", Entry{Kind: KindDistrict, Code: "ZJ"})
	m.add("火锅", Entry{Kind: KindIndustry, Code: "CAT"})
	m.add("火锅底料", Entry{Kind: KindIndustry, Code: "CAT"})

	var terms []string
	for _, match := range m.Scan("浙江西湖火锅底料厂") {
		terms = append(terms, match.Term)
	}
	expected := []string{"浙江", "西湖", "火锅底料"}
	if !reflect.DeepEqual(terms, expected) {
		t.Errorf("Expected %v, got %v", expected, terms)
	}
}

func TestMatcherNormalizesTerms(t *testing.T) {
	m := newMatcher()
	m.add("Textile", Entry{Kind: KindIndustry, Code: "TEX"})
	m.add("  ", Entry{Kind: KindIndustry, Code: "TEX"})

	if m.Len() != 1 {
		t.Fatalf("blank terms should be skipped, got %d terms", m.Len())
	}
	if got := m.Scan(ingest.Normalize("ＡＢＣ TEXTILE Co")); len(got) != 1 {
		t.Errorf("full-width/upper-case text should match, got %v", got)
	}
}

func TestNameExtractorBrewery(t *testing.T) {
	e := NewNameExtractor(newTestIndex(t), weights())
	sigs := e.Extract(ingest.RegistrationInput{Name: "青岛啤酒股份有限公司"})

	if len(sigs) != 2 {
		t.Fatalf("expected industry and region signal, got %+v", sigs)
	}
	if sigs[0].Dimension != signals.DimensionIndustry || sigs[0].Code != "BEV" || sigs[0].Weight != 0.5 {
		t.Errorf("unexpected industry signal %+v", sigs[0])
	}
	if sigs[1].Dimension != signals.DimensionRegion || sigs[1].Code != "SD" || sigs[1].Weight != 0.5 {
		t.Errorf("unexpected region signal %+v", sigs[1])
	}
	if sigs[1].Label != "山东省" {
		t.Errorf("label = %q", sigs[1].Label)
	}
}

func TestNameExtractorSpecificityWeight(t *testing.T) {
	e := NewNameExtractor(newTestIndex(t), weights())

	if w := e.KeywordWeight("醋"); w != 0.4 {
		t.Errorf("one-rune keyword weight = %v", w)
	}
	if w := e.KeywordWeight("火锅"); w != 0.5 {
		t.Errorf("two-rune keyword weight = %v", w)
	}
	if w := e.KeywordWeight("火锅底料"); w != 0.7 {
		t.Errorf("four-rune keyword weight = %v", w)
	}
	if w := e.KeywordWeight("生物制药研究"); w != 0.7 {
		t.Errorf("weight should cap at NameMax, got %v", w)
	}
}

func TestNameExtractorSuppressesContainedKeywords(t *testing.T) {
	e := NewNameExtractor(newTestIndex(t), weights())
	sigs := e.Extract(ingest.RegistrationInput{Name: "火锅底料火锅店"})

	industry := signals.Filter(sigs, signals.DimensionIndustry)
	if len(industry) != 1 {
		t.Fatalf("火锅 inside 火锅底料 should be suppressed, got %+v", industry)
	}
	if !strings.Contains(industry[0].Reasoning, "火锅底料") {
		t.Errorf("expected the longer keyword to survive, got %q", industry[0].Reasoning)
	}
}

func TestNameExtractorSeveralIndustries(t *testing.T) {
	e := NewNameExtractor(newTestIndex(t), weights())
	sigs := signals.Filter(e.Extract(ingest.RegistrationInput{Name: "海底捞火锅食品有限公司"}), signals.DimensionIndustry)

	if got := codes(sigs); !reflect.DeepEqual(got, []string{"CAT", "FOD"}) {
		t.Errorf("expected CAT and FOD in name order, got %v", got)
	}
}

func TestNameExtractorProvinceOutweighsCity(t *testing.T) {
	e := NewNameExtractor(newTestIndex(t), weights())
	sigs := signals.Filter(e.Extract(ingest.RegistrationInput{Name: "北京烤鸭食品厂"}), signals.DimensionRegion)

	if len(sigs) != 1 || sigs[0].Code != "BJ" || sigs[0].Weight != 0.6 {
		t.Errorf("北京 is both alias and city; expected one province-weight signal, got %+v", sigs)
	}
}

func TestNameExtractorEmpty(t *testing.T) {
	e := NewNameExtractor(newTestIndex(t), weights())
	if sigs := e.Extract(ingest.RegistrationInput{Name: "   "}); len(sigs) != 0 {
		t.Errorf("blank name should yield nothing, got %+v", sigs)
	}
	if sigs := e.Extract(ingest.RegistrationInput{Name: "Acme Holdings"}); len(sigs) != 0 {
		t.Errorf("unknown name should yield nothing, got %+v", sigs)
	}
}

func TestHintExtractor(t *testing.T) {
	e := NewHintExtractor(newTestIndex(t), weights())

	tests := []struct {
		hint   string
		code   string
		weight float64
	}{
		{"餐饮食品制造", "CAT", 0.95},
		{" 餐饮食品制造 ", "CAT", 0.95},
		{"啤酒制造", "BEV", 0.85},
		{"bev", "BEV", 0.95},
		{"火锅底料生产", "CAT", 0.85},
		{"something else", "", 0},
		{"oth", "", 0},
		{"", "", 0},
	}
	for _, tt := range tests {
		sigs := e.Extract(ingest.RegistrationInput{IndustryHint: tt.hint})
		if tt.code == "" {
			if len(sigs) != 0 {
				t.Errorf("hint %q: expected no signal, got %+v", tt.hint, sigs)
			}
			continue
		}
		if len(sigs) != 1 {
			t.Fatalf("hint %q: expected exactly one signal, got %+v", tt.hint, sigs)
		}
		if sigs[0].Code != tt.code || sigs[0].Weight != tt.weight || sigs[0].Source != signals.SourceHint {
			t.Errorf("hint %q: got %+v", tt.hint, sigs[0])
		}
	}
}

func TestHintExtractorFloor(t *testing.T) {
	w := weights()
	w.HintKeyword = 0.1
	e := NewHintExtractor(newTestIndex(t), w)
	sigs := e.Extract(ingest.RegistrationInput{IndustryHint: "啤酒"})
	if len(sigs) != 1 || sigs[0].Weight != config.MinHintWeight {
		t.Errorf("hint weight should never drop below %v, got %+v", config.MinHintWeight, sigs)
	}
}

func TestAddressExtractor(t *testing.T) {
	e := NewAddressExtractor(newTestIndex(t), weights())

	tests := []struct {
		name    string
		address string
		codes   []string
		weights []float64
	}{
		{"province city district", "山东省青岛市市南区香港中路", []string{"SD"}, []float64{0.9}},
		{"province only", "四川省", []string{"SC"}, []float64{0.9}},
		{"conflicting city", "浙江省成都市", []string{"ZJ", "SC"}, []float64{0.9, 0.6}},
		{"city only", "成都市武侯区", []string{"SC"}, []float64{0.6}},
		{"unique district", "崂山区某路1号", []string{"SD"}, []float64{0.4}},
		{"shared district", "西湖区文三路", nil, nil},
		{"no overlap false positive", "浙江西湖", []string{"ZJ"}, []float64{0.9}},
		{"full width", "山东省　青岛市", []string{"SD"}, []float64{0.9}},
		{"empty", "", nil, nil},
		{"nothing known", "123 Main Street", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sigs := e.Extract(ingest.RegistrationInput{Address: tt.address})
			if len(sigs) != len(tt.codes) {
				t.Fatalf("expected %v, got %+v", tt.codes, sigs)
			}
			for i, s := range sigs {
				if s.Code != tt.codes[i] || s.Weight != tt.weights[i] {
					t.Errorf("signal %d: expected %s/%v, got %+v", i, tt.codes[i], tt.weights[i], s)
				}
				if s.Dimension != signals.DimensionRegion {
					t.Errorf("address must only emit region signals, got %+v", s)
				}
			}
		})
	}
}

func TestAddressReasoningNamesCityAndDistrict(t *testing.T) {
	e := NewAddressExtractor(newTestIndex(t), weights())
	sigs := e.Extract(ingest.RegistrationInput{Address: "山东省青岛市市南区"})
	if len(sigs) != 1 {
		t.Fatalf("expected one signal, got %+v", sigs)
	}
	for _, want := range []string{"山东省", "青岛", "市南区"} {
		if !strings.Contains(sigs[0].Reasoning, want) {
			t.Errorf("reasoning %q should mention %s", sigs[0].Reasoning, want)
		}
	}
}

func TestPhoneExtractor(t *testing.T) {
	e := NewPhoneExtractor(newTestIndex(t), weights())

	tests := []struct {
		phone  string
		code   string
		weight float64
	}{
		{"13800138888", "BJ", 0.25},
		{"+86 138 0013 8888", "BJ", 0.25},
		{"0086-138-0013-8888", "BJ", 0.25},
		{"１３８００１３８８８８", "BJ", 0.25},
		{"(0532) 8888-8888", "SD", 0.4},
		{"+86 532 8888 8888", "SD", 0.4},
		{"010-66668888", "BJ", 0.4},
		{"+86 10 6666 8888", "BJ", 0.4},
		{"+852 2345 6789", "HK", 0.4},
		{"17000000000", "", 0},
		{"+1 415 555 0100", "", 0},
		{"12345", "", 0},
		{"n/a", "", 0},
	}
	for _, tt := range tests {
		sigs := e.Extract(ingest.RegistrationInput{ContactPhone: tt.phone})
		if tt.code == "" {
			if len(sigs) != 0 {
				t.Errorf("phone %q: expected nothing, got %+v", tt.phone, sigs)
			}
			continue
		}
		if len(sigs) != 1 || sigs[0].Code != tt.code || sigs[0].Weight != tt.weight {
			t.Errorf("phone %q: expected %s/%v, got %+v", tt.phone, tt.code, tt.weight, sigs)
		}
	}
}

func TestPhoneExtractorCarrierAndCap(t *testing.T) {
	w := weights()
	w.PhoneMobile = 0.9
	e := NewPhoneExtractor(newTestIndex(t), w)

	sigs := e.Extract(ingest.RegistrationInput{ContactPhone: "13800138888"})
	if len(sigs) != 1 {
		t.Fatalf("expected one signal, got %+v", sigs)
	}
	if sigs[0].Weight != config.MaxPhoneWeight {
		t.Errorf("phone weight should be capped at %v, got %v", config.MaxPhoneWeight, sigs[0].Weight)
	}
	if !strings.Contains(sigs[0].Reasoning, "中国移动") {
		t.Errorf("reasoning should name the carrier: %q", sigs[0].Reasoning)
	}
}

func TestEmailExtractor(t *testing.T) {
	e := NewEmailExtractor(newTestIndex(t), weights())

	tests := []struct {
		email  string
		code   string
		weight float64
	}{
		{"sales@tsingtao.com.cn", "SD", 0.3},
		{"SALES@TSINGTAO.COM.CN", "SD", 0.3},
		{"hr@mail.tsingtao.com.cn", "SD", 0.3},
		{"info@factory.sd.cn", "SD", 0.2},
		{"info@shop.com.hk", "HK", 0.2},
		{"manager@haidilao.com", "", 0},
		{"no-at-sign", "", 0},
		{"trailing@", "", 0},
		{"@sd.cn", "", 0},
	}
	for _, tt := range tests {
		sigs := e.Extract(ingest.RegistrationInput{ContactEmail: tt.email})
		if tt.code == "" {
			if len(sigs) != 0 {
				t.Errorf("email %q: expected nothing, got %+v", tt.email, sigs)
			}
			continue
		}
		if len(sigs) != 1 || sigs[0].Code != tt.code || sigs[0].Weight != tt.weight {
			t.Errorf("email %q: expected %s/%v, got %+v", tt.email, tt.code, tt.weight, sigs)
		}
	}
}

func TestPipelineParallelMatchesSequential(t *testing.T) {
	idx := newTestIndex(t)
	in := ingest.RegistrationInput{
		Name:         "海底捞火锅食品有限公司",
		IndustryHint: "餐饮食品制造",
		Address:      "四川省成都市高新区",
		ContactPhone: "13800138888",
		ContactEmail: "manager@haidilao.com",
	}

	seq, err := NewPipeline(idx, weights(), false).Extract(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		par, err := NewPipeline(idx, weights(), true).Extract(context.Background(), in)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(seq, par) {
			t.Fatalf("parallel run %d differs:\n%+v\n%+v", i, seq, par)
		}
	}

	sources := make([]signals.Source, len(seq))
	for i, s := range seq {
		sources[i] = s.Source
	}
	expected := []signals.Source{
		signals.SourceHint,
		signals.SourceName, signals.SourceName,
		signals.SourceAddress,
		signals.SourcePhone,
	}
	if !reflect.DeepEqual(sources, expected) {
		t.Errorf("expected fixed extractor order %v, got %v", expected, sources)
	}
}

func TestPipelineCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, parallel := range []bool{true, false} {
		_, err := NewPipeline(newTestIndex(t), weights(), parallel).Extract(ctx, ingest.RegistrationInput{Name: "x"})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("parallel=%v: expected context.Canceled, got %v", parallel, err)
		}
	}
}

func TestNewIndexRejectsConflicts(t *testing.T) {
	tax := &config.Taxonomy{
		Regions: []config.Region{
			{Code: "AA", Name: "A", AreaCodes: []string{"0999"}},
			{Code: "BB", Name: "B", AreaCodes: []string{"0999"}},
		},
	}
	if _, err := NewIndex(tax); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewIndex(nil); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("nil taxonomy: expected ErrInvalidConfig, got %v", err)
	}
}
