package model

import "testing"

func TestParseSortMode(t *testing.T) {
	tests := []struct {
		in      string
		want    SortMode
		wantErr bool
	}{
		{"", SortRecency, false},
		{"recency", SortRecency, false},
		{" New ", SortRecency, false},
		{"popular", SortRanked, false},
		{"RANKED", SortRanked, false},
		{"score", SortRanked, false},
		{"loudest", SortRecency, true},
	}
	for _, tt := range tests {
		got, err := ParseSortMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSortMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSortMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNetScore(t *testing.T) {
	p := Post{UpVote: 3, DownVote: 5}
	if got := p.NetScore(); got != -2 {
		t.Errorf("NetScore() = %d, want -2", got)
	}
}

func TestVoteDirection_Valid(t *testing.T) {
	for _, d := range []VoteDirection{VoteUp, VoteDown} {
		if !d.Valid() {
			t.Errorf("%q should be valid", d)
		}
	}
	if VoteDirection("sideways").Valid() {
		t.Error("unknown direction reported valid")
	}
}
