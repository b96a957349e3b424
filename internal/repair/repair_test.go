package repair

import (
	"testing"
)

func TestJSONRepairs(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "Sure!\n```json\n{\"a\":1}\n```\nHope that helps", `{"a":1}`},
		{"leading text", `Here you go: {"a":1} -- done`, `{"a":1}`},
		{"trailing comma", `{"a":[1,2,],}`, `{"a":[1,2]}`},
		{"truncated string", `{"a":"hel`, `{"a":"hel"}`},
		{"truncated array", `[{"t":"x"},{"t":"y"`, `[{"t":"x"},{"t":"y"}]`},
		{"smart quotes", `{“a”:“b”}`, `{"a":"b"}`},
		{"brace inside string", `{"a":"}{"} tail`, `{"a":"}{"}`},
		{"comma inside string kept", `{"a":",]"}`, `{"a":",]"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := JSON(tc.in)
			if err != nil {
				t.Fatalf("JSON(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("JSON(%q)=%q want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestJSONFailures(t *testing.T) {
	cases := []struct {
		in   string
		want Reason
	}{
		{"", ReasonEmpty},
		{"   \n\t", ReasonEmpty},
		{"Not JSON", ReasonNoJSON},
		{`{"a":}`, ReasonUnparseable},
		{`[oops]`, ReasonUnparseable},
	}
	for _, tc := range cases {
		_, err := JSON(tc.in)
		if err == nil {
			t.Fatalf("JSON(%q): expected error", tc.in)
		}
		if r := ReasonOf(err); r != tc.want {
			t.Fatalf("JSON(%q) reason=%q want %q", tc.in, r, tc.want)
		}
	}
}

func TestDecodeWrongShape(t *testing.T) {
	var v struct{ A int }
	err := Decode(`{"A":"text"}`, &v)
	if ReasonOf(err) != ReasonWrongShape {
		t.Fatalf("expected wrong_shape, got %v", err)
	}
	if err := Decode(`{"A":3}`, &v); err != nil || v.A != 3 {
		t.Fatalf("decode: v=%+v err=%v", v, err)
	}
}

func TestArrayUnwrapsObject(t *testing.T) {
	items, err := Array(`{"mutations":[{"title":"a"},{"title":"b"}]}`)
	if err != nil {
		t.Fatalf("Array: %v", err)
	}
	if len(items) != 2 || items[1].Get("title").String() != "b" {
		t.Fatalf("unexpected items: %v", items)
	}
	one, err := Array(`{"title":"solo"}`)
	if err != nil || len(one) != 1 {
		t.Fatalf("single object: %v %v", one, err)
	}
}

func TestObjectRejectsArray(t *testing.T) {
	if _, err := Object(`[1,2]`); ReasonOf(err) != ReasonWrongShape {
		t.Fatalf("expected wrong_shape, got %v", err)
	}
}
