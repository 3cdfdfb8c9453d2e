package ndview

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_EncodeDescr_Emits_Canonical_Padded_Triple(t *testing.T) {
	t.Parallel()

	enc, err := EncodeDescr(Descr{DType: DTypeFloat64, Shape: []int{480, 640}, Order: OrderC})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if len(enc)%8 != 0 {
		t.Errorf("encoded length %d is not a multiple of 8", len(enc))
	}

	if got, want := string(bytes.TrimRight(enc, " ")), `["<f8",[480,640],"C"]`; got != want {
		t.Errorf("canonical form = %q, want %q", got, want)
	}

	if trimmed := bytes.TrimRight(enc, " "); len(trimmed) == len(enc) {
		t.Errorf("expected trailing space padding, got %q", enc)
	}
}

func Test_EncodeDescr_Renders_Scalar_Shape_As_Empty_List(t *testing.T) {
	t.Parallel()

	enc, err := EncodeDescr(Descr{DType: DTypeUint8, Order: OrderC})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if got, want := string(bytes.TrimRight(enc, " ")), `["|u1",[],"C"]`; got != want {
		t.Errorf("canonical form = %q, want %q", got, want)
	}
}

func Test_Descr_Round_Trips_Through_Encode_And_Decode(t *testing.T) {
	t.Parallel()

	cases := []Descr{
		{DType: DTypeFloat64, Shape: []int{480, 640}, Order: OrderC},
		{DType: DTypeInt16, Shape: []int{3, 4, 5}, Order: OrderF},
		{DType: DTypeBool, Shape: []int{7}, Order: OrderC},
		{DType: DTypeUint64, Shape: []int{0}, Order: OrderC},
		{DType: DTypeFloat32, Shape: []int{1, 1, 1, 1}, Order: OrderF},
	}

	for _, want := range cases {
		enc, err := EncodeDescr(want)
		if err != nil {
			t.Fatalf("encode %+v: %v", want, err)
		}

		got, err := DecodeDescr(enc)
		if err != nil {
			t.Fatalf("decode %q: %v", enc, err)
		}

		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip of %+v (-want +got):\n%s", want, diff)
		}
	}
}

func Test_DecodeDescr_Tolerates_Trailing_Space_Padding(t *testing.T) {
	t.Parallel()

	for _, pad := range []string{"", " ", "       ", strings.Repeat(" ", 32)} {
		d, err := DecodeDescr([]byte(`["<i4",[2,2],"F"]` + pad))
		if err != nil {
			t.Fatalf("decode with %d pad bytes: %v", len(pad), err)
		}

		if d.DType != DTypeInt32 || d.Order != OrderF {
			t.Errorf("decode with %d pad bytes = %+v", len(pad), d)
		}
	}
}

func Test_DecodeDescr_Rejects_Malformed_Input(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		enc  string
	}{
		{"empty", ""},
		{"not json", "not json"},
		{"not a list", `"<f8"`},
		{"two fields", `["<f8",[1]]`},
		{"four fields", `["<f8",[1],"C",0]`},
		{"dtype not a string", `[5,[1],"C"]`},
		{"big-endian dtype", `[">f8",[1],"C"]`},
		{"unknown dtype", `["<f16",[1],"C"]`},
		{"shape not a list", `["<f8","x","C"]`},
		{"fractional dimension", `["<f8",[1.5],"C"]`},
		{"negative dimension", `["<f8",[-1],"C"]`},
		{"unknown order", `["<f8",[1],"X"]`},
		{"overflowing shape", `["<f8",[4611686018427387904,4],"C"]`},
	}

	for _, tc := range cases {
		if _, err := DecodeDescr([]byte(tc.enc)); !errors.Is(err, ErrDescr) {
			t.Errorf("%s: decode = %v, want ErrDescr", tc.name, err)
		}
	}
}

func Test_Descr_ItemSize_Covers_The_DType_Table(t *testing.T) {
	t.Parallel()

	sizes := map[string]int{
		DTypeBool: 1, DTypeInt8: 1, DTypeUint8: 1,
		DTypeInt16: 2, DTypeUint16: 2,
		DTypeInt32: 4, DTypeUint32: 4, DTypeFloat32: 4,
		DTypeInt64: 8, DTypeUint64: 8, DTypeFloat64: 8,
	}

	for dtype, want := range sizes {
		d := Descr{DType: dtype, Shape: []int{2}, Order: OrderC}
		if err := d.Validate(); err != nil {
			t.Errorf("%s: validate: %v", dtype, err)
		}

		if got := d.ItemSize(); got != want {
			t.Errorf("%s: item size = %d, want %d", dtype, got, want)
		}

		if got := d.ByteLen(); got != 2*want {
			t.Errorf("%s: byte length = %d, want %d", dtype, got, 2*want)
		}
	}

	if got := (Descr{DType: "bogus"}).ItemSize(); got != 0 {
		t.Errorf("unknown dtype item size = %d, want 0", got)
	}
}

func Test_Descr_Strides_Follow_Memory_Order(t *testing.T) {
	t.Parallel()

	rowMajor := Descr{DType: DTypeFloat64, Shape: []int{2, 3, 4}, Order: OrderC}
	if diff := cmp.Diff([]int{96, 32, 8}, rowMajor.Strides()); diff != "" {
		t.Errorf("row-major strides (-want +got):\n%s", diff)
	}

	colMajor := Descr{DType: DTypeFloat64, Shape: []int{2, 3, 4}, Order: OrderF}
	if diff := cmp.Diff([]int{8, 16, 48}, colMajor.Strides()); diff != "" {
		t.Errorf("column-major strides (-want +got):\n%s", diff)
	}

	scalar := Descr{DType: DTypeInt8, Order: OrderC}
	if got := scalar.Strides(); len(got) != 0 {
		t.Errorf("scalar strides = %v, want none", got)
	}
}

func Test_Descr_Offset_Locates_Elements_In_Both_Orders(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		order   Order
		indices []int
		want    int
	}{
		{"row-major origin", OrderC, []int{0, 0}, 0},
		{"row-major walks last axis by items", OrderC, []int{0, 2}, 8},
		{"row-major walks first axis by rows", OrderC, []int{1, 0}, 12},
		{"row-major last element", OrderC, []int{1, 2}, 20},
		{"column-major origin", OrderF, []int{0, 0}, 0},
		{"column-major walks first axis by items", OrderF, []int{1, 0}, 4},
		{"column-major walks last axis by columns", OrderF, []int{0, 2}, 16},
		{"column-major last element", OrderF, []int{1, 2}, 20},
	}

	for _, tc := range cases {
		d := Descr{DType: DTypeInt32, Shape: []int{2, 3}, Order: tc.order}

		got, err := d.Offset(tc.indices...)
		if err != nil {
			t.Fatalf("%s: offset: %v", tc.name, err)
		}

		if got != tc.want {
			t.Errorf("%s: offset = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func Test_Descr_Offset_Rejects_Bad_Indices(t *testing.T) {
	t.Parallel()

	d := Descr{DType: DTypeInt32, Shape: []int{2, 3}, Order: OrderC}

	cases := []struct {
		name    string
		indices []int
	}{
		{"too few indices", []int{1}},
		{"too many indices", []int{1, 1, 1}},
		{"negative index", []int{-1, 0}},
		{"index at axis size", []int{0, 3}},
	}

	for _, tc := range cases {
		if _, err := d.Offset(tc.indices...); !errors.Is(err, ErrIndex) {
			t.Errorf("%s: offset = %v, want ErrIndex", tc.name, err)
		}
	}
}

func Test_Descr_Handles_Scalar_And_Empty_Shapes(t *testing.T) {
	t.Parallel()

	scalar := Descr{DType: DTypeFloat64, Order: OrderC}
	if err := scalar.Validate(); err != nil {
		t.Fatalf("scalar validate: %v", err)
	}

	if scalar.Elements() != 1 || scalar.ByteLen() != 8 {
		t.Errorf("scalar elements = %d, byte length = %d, want 1 and 8",
			scalar.Elements(), scalar.ByteLen())
	}

	if off, err := scalar.Offset(); err != nil || off != 0 {
		t.Errorf("scalar offset = %d, %v, want 0 and nil", off, err)
	}

	empty := Descr{DType: DTypeFloat64, Shape: []int{0, 5}, Order: OrderC}
	if err := empty.Validate(); err != nil {
		t.Fatalf("empty validate: %v", err)
	}

	if empty.Elements() != 0 || empty.ByteLen() != 0 {
		t.Errorf("empty elements = %d, byte length = %d, want 0 and 0",
			empty.Elements(), empty.ByteLen())
	}
}
