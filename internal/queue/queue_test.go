package queue

import (
	"encoding/json"
	"testing"
)

func TestInfoJSON(t *testing.T) {
	in := []Info{
		{Index: 0, Locator: "/html[1]/body[1]/p[1]", Text: "a", Status: Generated},
		{Index: 1, Locator: "/html[1]/body[1]/p[2]", Text: "b", Status: Generating},
		{Index: 2, Locator: "/html[1]/body[1]/p[3]", Text: "c"},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out []Info
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", data, err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("info %d = %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestStatusUnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"not-generated", NotGenerated, false},
		{"generating", Generating, false},
		{"generated", Generated, false},
		{"unknown", NotGenerated, true},
		{"", NotGenerated, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var s Status
			err := s.UnmarshalText([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("UnmarshalText(%q) error = %v", tt.in, err)
			}
			if s != tt.want {
				t.Errorf("UnmarshalText(%q) = %v, want %v", tt.in, s, tt.want)
			}
		})
	}
}
