// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package version

import "testing"

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		cli      Build
		daemon   Build
		mismatch bool
		summary  string
	}{
		{
			name:    "same build",
			cli:     Build{Version: "0.2.0", GitCommit: "abc1234"},
			daemon:  Build{Version: "0.2.0", GitCommit: "abc1234"},
			summary: "identical",
		},
		{
			name:     "different version",
			cli:      Build{Version: "0.2.0", GitCommit: "abc1234"},
			daemon:   Build{Version: "0.1.0", GitCommit: "abc1234"},
			mismatch: true,
			summary:  "version differ",
		},
		{
			name:     "different commit",
			cli:      Build{Version: "0.2.0", GitCommit: "abc1234"},
			daemon:   Build{Version: "0.2.0", GitCommit: "def5678"},
			mismatch: true,
			summary:  "commit differ",
		},
		{
			name:    "development build",
			cli:     Build{Version: "0.2.0", GitCommit: "unknown"},
			daemon:  Build{Version: "0.2.0", GitCommit: "def5678"},
			summary: "identical",
		},
		{
			name:     "both differ",
			cli:      Build{Version: "0.3.0", GitCommit: "abc1234"},
			daemon:   Build{Version: "0.2.0", GitCommit: "def5678"},
			mismatch: true,
			summary:  "version, commit differ",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			diff := Compare(test.cli, test.daemon)
			if diff.Mismatch() != test.mismatch {
				t.Errorf("Mismatch() = %v, want %v", diff.Mismatch(), test.mismatch)
			}
			if diff.String() != test.summary {
				t.Errorf("String() = %q, want %q", diff.String(), test.summary)
			}
		})
	}
}

func TestBuildString(t *testing.T) {
	build := Build{Version: "0.1.0", GitCommit: "abc1234", Dirty: true}
	if got := build.String(); got != "0.1.0 (abc1234-dirty)" {
		t.Errorf("String() = %q", got)
	}
	if got := (Build{Version: "0.1.0", GitCommit: "abc1234"}).String(); got != "0.1.0 (abc1234)" {
		t.Errorf("String() = %q", got)
	}
}
