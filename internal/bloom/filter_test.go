package bloom

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestOptimalParameters(t *testing.T) {
	bits, hashes := OptimalParameters(1000, 0.01)
	// m ≈ 9586, k ≈ 7
	if bits < 9500 || bits > 9700 {
		t.Errorf("bits = %d, want about 9586", bits)
	}
	if hashes != 7 {
		t.Errorf("hashes = %d, want 7", hashes)
	}

	bits, hashes = OptimalParameters(1, 0.5)
	if bits != 64 || hashes < 1 {
		t.Errorf("minimums not applied: bits=%d hashes=%d", bits, hashes)
	}
}

func TestForColumn(t *testing.T) {
	values := []string{"000110339935453", "", "000110339935453", "000110359424531"}
	f := ForColumn(values, 0.01)

	if f.Count() != 2 {
		t.Errorf("Count() = %d, want 2 distinct keys", f.Count())
	}
	for _, v := range values[1:] {
		if v != "" && !f.MayContain(v) {
			t.Errorf("false negative for %s", v)
		}
	}
}

func TestFalsePositiveRate(t *testing.T) {
	f := NewWithEstimates(10000, 0.01)
	if f.FalsePositiveRate() != 0 {
		t.Error("empty filter should report zero false positive rate")
	}
	for i := 0; i < 10000; i++ {
		f.Add(fmt.Sprintf("HH%09d", i))
	}
	if rate := f.FalsePositiveRate(); rate > 0.02 {
		t.Errorf("estimated rate %f exceeds twice the target", rate)
	}

	falsePositives := 0
	for i := 0; i < 10000; i++ {
		if f.MayContain(fmt.Sprintf("XX%09d", i)) {
			falsePositives++
		}
	}
	if falsePositives > 300 {
		t.Errorf("observed %d false positives out of 10000", falsePositives)
	}
}

func TestEncodeDecode(t *testing.T) {
	f := ForColumn([]string{"a", "b", "c"}, 0.01)
	enc := f.Encode("HRHHID")
	if enc.Column != "HRHHID" || enc.Algorithm != Algorithm {
		t.Errorf("encoded header = %+v", enc)
	}

	got, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Count() != 3 || got.NumBits() != f.NumBits() || got.NumHashes() != f.NumHashes() {
		t.Errorf("decoded parameters differ: %d/%d/%d", got.Count(), got.NumBits(), got.NumHashes())
	}
	for _, k := range []string{"a", "b", "c"} {
		if !got.MayContain(k) {
			t.Errorf("decoded filter lost key %s", k)
		}
	}
}

func TestDecode_Invalid(t *testing.T) {
	good := New(128, 3).Encode("X")

	cases := []*Encoded{
		nil,
		{Algorithm: "fnv", NumBits: 128, NumHashes: 3, Data: good.Data},
		{Algorithm: Algorithm, NumBits: 100, NumHashes: 3, Data: good.Data},
		{Algorithm: Algorithm, NumBits: 128, NumHashes: 3, Data: "!!!"},
		{Algorithm: Algorithm, NumBits: 256, NumHashes: 3, Data: good.Data},
	}
	for i, c := range cases {
		if _, err := Decode(c); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestProperty_NoFalseNegatives(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every added key survives encoding", prop.ForAll(
		func(keys []string) bool {
			f := ForColumn(keys, 0.01)
			decoded, err := Decode(f.Encode("K"))
			if err != nil {
				return false
			}
			for _, k := range keys {
				if k != "" && !decoded.MayContain(k) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.NumString()),
	))

	properties.TestingRun(t)
}
