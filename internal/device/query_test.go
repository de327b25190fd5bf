package device

import (
	"errors"
	"testing"
)

func TestQueryMatches(t *testing.T) {
	connectedMac := Device{ID: "a", Type: TypeMac, Status: StatusConnected}
	pairedAndroid := Device{ID: "b", Type: TypeAndroid, Status: StatusDisconnected, Paired: true}

	tests := []struct {
		q    Query
		d    Device
		want bool
	}{
		{All(), connectedMac, true},
		{All(), pairedAndroid, true},
		{Connected(), connectedMac, true},
		{Connected(), pairedAndroid, false},
		{Paired(), connectedMac, false},
		{Paired(), pairedAndroid, true},
		{ByType(TypeMac), connectedMac, true},
		{ByType(TypeMac), pairedAndroid, false},
	}
	for _, tt := range tests {
		t.Run(tt.q.String()+"/"+tt.d.ID, func(t *testing.T) {
			if got := tt.q.Matches(tt.d); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		in      string
		want    Query
		wantErr bool
	}{
		{"", All(), false},
		{"all", All(), false},
		{"connected", Connected(), false},
		{"paired", Paired(), false},
		{"type:MAC", ByType(TypeMac), false},
		{"type:android", ByType(TypeAndroid), false},
		{"type:toaster", ByType(TypeUnknown), false},
		{"type:", Query{}, true},
		{"recent", Query{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQuery(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseQuery(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidQuery) {
					t.Errorf("error = %v, want ErrInvalidQuery", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseQuery(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestQueryStringRoundTrip(t *testing.T) {
	for _, q := range []Query{All(), Connected(), Paired(), ByType(TypeLinux)} {
		got, err := ParseQuery(q.String())
		if err != nil {
			t.Fatalf("ParseQuery(%q) error = %v", q.String(), err)
		}
		if got != q {
			t.Errorf("round trip of %q = %+v", q.String(), got)
		}
	}
}
