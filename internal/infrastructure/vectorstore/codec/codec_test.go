package codec

import "testing"

func TestRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 384, 1536} {
		vec := make([]float32, n)
		for i := range vec {
			vec[i] = float32(i)*0.25 - 3
		}
		blob := Encode(vec)
		if len(blob) != n*4 {
			t.Fatalf("blob for %d floats should be %d bytes, got %d", n, n*4, len(blob))
		}
		back, err := Decode(blob)
		if err != nil {
			t.Fatal(err)
		}
		if len(back) != n {
			t.Fatalf("decoded length %d, want %d", len(back), n)
		}
		for i := range vec {
			if back[i] != vec[i] {
				t.Fatalf("value drift at %d: %f vs %f", i, back[i], vec[i])
			}
		}
	}
}

func TestDecode_RejectsMisalignedBlob(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 7} {
		if _, err := Decode(make([]byte, n)); err == nil {
			t.Errorf("blob of %d bytes must be rejected", n)
		}
	}
}
